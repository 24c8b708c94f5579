package wrap

import (
	"time"

	"github.com/google/uuid"

	"github.com/kotadb/kotadb/pkg/log"
	"github.com/kotadb/kotadb/pkg/types"
)

// TracedStorage is the outermost wrapper: it assigns a trace id per
// operation and logs its duration, passing every other behavior straight
// through to next.
type TracedStorage struct {
	next      Storage
	component string
}

// Traced wraps next with per-operation tracing.
func Traced(next Storage, component string) *TracedStorage {
	return &TracedStorage{next: next, component: component}
}

func (t *TracedStorage) trace(op string, fn func() error) error {
	traceID := uuid.New().String()
	logger := log.WithTrace(log.WithComponent(t.component), traceID)
	start := time.Now()
	err := fn()
	logger.Debug().Str("op", op).Dur("duration", time.Since(start)).Err(err).Msg("storage operation")
	return err
}

func (t *TracedStorage) Insert(doc *types.Document) error {
	return t.trace("insert", func() error { return t.next.Insert(doc) })
}

func (t *TracedStorage) Get(id types.ID) (*types.Document, bool) {
	traceID := uuid.New().String()
	logger := log.WithTrace(log.WithComponent(t.component), traceID)
	start := time.Now()
	doc, ok := t.next.Get(id)
	logger.Debug().Str("op", "get").Dur("duration", time.Since(start)).Bool("found", ok).Msg("storage operation")
	return doc, ok
}

func (t *TracedStorage) Update(doc *types.Document) error {
	return t.trace("update", func() error { return t.next.Update(doc) })
}

func (t *TracedStorage) Delete(id types.ID) (bool, error) {
	var removed bool
	err := t.trace("delete", func() error {
		var err error
		removed, err = t.next.Delete(id)
		return err
	})
	return removed, err
}

func (t *TracedStorage) Flush() error {
	return t.trace("flush", func() error { return t.next.Flush() })
}

// TracedIndex is the Index-contract analog.
type TracedIndex struct {
	next      Index
	component string
}

func TracedIdx(next Index, component string) *TracedIndex {
	return &TracedIndex{next: next, component: component}
}

func (t *TracedIndex) Search(q types.Query) ([]types.ID, error) {
	traceID := uuid.New().String()
	logger := log.WithTrace(log.WithComponent(t.component), traceID)
	start := time.Now()
	ids, err := t.next.Search(q)
	logger.Debug().Str("op", "search").Dur("duration", time.Since(start)).Int("results", len(ids)).Err(err).Msg("index operation")
	return ids, err
}

func (t *TracedIndex) Flush() error {
	traceID := uuid.New().String()
	logger := log.WithTrace(log.WithComponent(t.component), traceID)
	start := time.Now()
	err := t.next.Flush()
	logger.Debug().Str("op", "flush").Dur("duration", time.Since(start)).Err(err).Msg("index operation")
	return err
}
