package wrap

import (
	"time"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// RetryConfig tunes the exponential backoff applied to transient errors.
type RetryConfig struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultRetryConfig is a conservative backoff: five attempts, 10ms
// doubling up to a 1s ceiling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Initial: 10 * time.Millisecond, Max: 1 * time.Second, MaxAttempts: 5}
}

// RetriedStorage re-invokes next on transient errors (kerrors.Transient,
// kerrors.ResourceExhausted) with exponential backoff; any other error
// kind is permanent and surfaces on the first attempt.
type RetriedStorage struct {
	next Storage
	cfg  RetryConfig
	now  func() time.Time
	sleep func(time.Duration)
}

func Retried(next Storage, cfg RetryConfig) *RetriedStorage {
	return &RetriedStorage{next: next, cfg: cfg, now: time.Now, sleep: time.Sleep}
}

func (r *RetriedStorage) backoff(attempt int) time.Duration {
	d := r.cfg.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > r.cfg.Max {
			return r.cfg.Max
		}
	}
	return d
}

func (r *RetriedStorage) run(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts(r.cfg); attempt++ {
		err = fn()
		if err == nil || !kerrors.IsTransient(err) {
			return err
		}
		r.sleep(r.backoff(attempt))
	}
	return err
}

func maxAttempts(cfg RetryConfig) int {
	if cfg.MaxAttempts <= 0 {
		return 1
	}
	return cfg.MaxAttempts
}

func (r *RetriedStorage) Insert(doc *types.Document) error {
	return r.run(func() error { return r.next.Insert(doc) })
}

func (r *RetriedStorage) Get(id types.ID) (*types.Document, bool) {
	return r.next.Get(id)
}

func (r *RetriedStorage) Update(doc *types.Document) error {
	return r.run(func() error { return r.next.Update(doc) })
}

func (r *RetriedStorage) Delete(id types.ID) (bool, error) {
	var removed bool
	err := r.run(func() error {
		var err error
		removed, err = r.next.Delete(id)
		return err
	})
	return removed, err
}

func (r *RetriedStorage) Flush() error {
	return r.run(func() error { return r.next.Flush() })
}
