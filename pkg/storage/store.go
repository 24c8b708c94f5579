// Package storage implements the crash-safe document store: a
// WAL-journaled, checksum-verified, checkpointed persistence layer for
// variable-size documents keyed by id. Checkpointed pages are backed by a
// go.etcd.io/bbolt database, itself a persistent B+tree, used purely as
// the fixed-size page container; the WAL, CRC32 framing, and LSN-based
// replay that give the store its crash-safety properties are implemented
// here, in front of that backing file.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/log"
	"github.com/kotadb/kotadb/pkg/types"
)

var pagesBucket = []byte("documents")
var metaBucket = []byte("meta")
var checkpointLSNKey = []byte("checkpoint_lsn")

// Config tunes checkpoint cadence. Checkpointing triggers on whichever
// of the two fires first.
type Config struct {
	CheckpointInterval time.Duration
	CheckpointEvery    int
}

// DefaultConfig checkpoints every 30 seconds or 1000 writes, whichever
// comes first.
func DefaultConfig() Config {
	return Config{CheckpointInterval: 30 * time.Second, CheckpointEvery: 1000}
}

// Store is the crash-safe document store.
type Store struct {
	mu      sync.RWMutex
	dir     string
	db      *bbolt.DB
	wal     *wal
	docs    map[string]*types.Document
	cfg     Config
	writes  int
	lastCkp time.Time
	logger  zerolog.Logger
}

// diskDocument is the JSON shape written to both the WAL payload and the
// bbolt checkpoint bucket.
type diskDocument struct {
	ID        string      `json:"id"`
	Path      string      `json:"path"`
	Title     string      `json:"title"`
	Content   []byte      `json:"content"`
	Tags      types.TagSet `json:"tags"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Embedding []float32   `json:"embedding,omitempty"`
}

func toDisk(d *types.Document) diskDocument {
	return diskDocument{
		ID:        d.ID.String(),
		Path:      d.Path.String(),
		Title:     d.Title.String(),
		Content:   d.Content,
		Tags:      d.Tags,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Embedding: d.Embedding,
	}
}

func fromDisk(dd diskDocument) (*types.Document, error) {
	id, err := types.ParseID(dd.ID)
	if err != nil {
		return nil, err
	}
	path, err := types.NewPath(dd.Path)
	if err != nil {
		return nil, err
	}
	title, err := types.NewTitle(dd.Title)
	if err != nil {
		return nil, err
	}
	return &types.Document{
		ID:        id,
		Path:      path,
		Title:     title,
		Content:   dd.Content,
		Tags:      dd.Tags,
		CreatedAt: dd.CreatedAt,
		UpdatedAt: dd.UpdatedAt,
		Embedding: dd.Embedding,
	}, nil
}

// Open opens (creating if necessary) a document store rooted at dir,
// replaying any WAL records written since the last checkpoint.
func Open(dir string, cfg Config) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kerrors.Wrap(kerrors.Internal, "create storage dir", err)
	}
	db, err := bbolt.Open(filepath.Join(dir, "pages.db"), 0o600, nil)
	if err != nil {
		if isTooManyOpenFiles(err) {
			return nil, kerrors.Wrap(kerrors.ResourceExhausted, "open pages db", err)
		}
		return nil, kerrors.Wrap(kerrors.Internal, "open pages db", err)
	}

	s := &Store{
		dir:     dir,
		db:      db,
		docs:    make(map[string]*types.Document),
		cfg:     cfg,
		lastCkp: time.Now(),
		logger:  log.WithComponent("storage"),
	}

	var checkpointLSN uint64
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pagesBucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if v := meta.Get(checkpointLSNKey); v != nil {
			checkpointLSN = decodeUint64(v)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, kerrors.Wrap(kerrors.Internal, "init pages db", err)
	}

	if err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pagesBucket)
		return b.ForEach(func(k, v []byte) error {
			var dd diskDocument
			if err := json.Unmarshal(v, &dd); err != nil {
				return kerrors.Wrap(kerrors.CorruptedRecord, "decode checkpointed document", err).WithField("pages")
			}
			doc, err := fromDisk(dd)
			if err != nil {
				return err
			}
			s.docs[doc.ID.String()] = doc
			return nil
		})
	}); err != nil {
		db.Close()
		return nil, err
	}

	w, err := openWAL(filepath.Join(dir, "wal.log"))
	if err != nil {
		db.Close()
		return nil, err
	}
	s.wal = w

	if err := w.replay(checkpointLSN, func(rec Record) error {
		return s.applyRecord(rec)
	}); err != nil {
		db.Close()
		w.close()
		return nil, err
	}

	return s, nil
}

func (s *Store) applyRecord(rec Record) error {
	switch rec.Op {
	case OpInsert, OpUpdate:
		var dd diskDocument
		if err := json.Unmarshal(rec.Payload, &dd); err != nil {
			return nil // torn/corrupt payload already filtered by CRC; defensive no-op
		}
		doc, err := fromDisk(dd)
		if err != nil {
			return nil
		}
		s.docs[doc.ID.String()] = doc
	case OpDelete:
		delete(s.docs, string(rec.Payload))
	}
	return nil
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// Insert adds a new document. Fails AlreadyExists if doc.ID is already
// present.
func (s *Store) Insert(doc *types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID.String()]; exists {
		return kerrors.Newf(kerrors.AlreadyExists, "document %s already exists", doc.ID)
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(toDisk(doc))
	if err != nil {
		return kerrors.Wrap(kerrors.Internal, "encode document", err)
	}
	if _, err := s.wal.append(OpInsert, payload); err != nil {
		return err
	}
	s.docs[doc.ID.String()] = doc.Clone()
	return s.maybeCheckpointLocked()
}

// Get returns a deep-immutable clone of the document, or false if absent.
func (s *Store) Get(id types.ID) (*types.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id.String()]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// Update replaces an existing document. Fails NotFound if doc.ID is
// absent; enforces that created_at is unchanged and updated_at does not
// regress.
func (s *Store) Update(doc *types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[doc.ID.String()]
	if !ok {
		return kerrors.Newf(kerrors.NotFound, "document %s not found", doc.ID)
	}
	doc.CreatedAt = existing.CreatedAt
	if doc.UpdatedAt.Before(existing.UpdatedAt) {
		return kerrors.New(kerrors.Validation, "updated_at must not regress").WithField("updated_at")
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(toDisk(doc))
	if err != nil {
		return kerrors.Wrap(kerrors.Internal, "encode document", err)
	}
	if _, err := s.wal.append(OpUpdate, payload); err != nil {
		return err
	}
	s.docs[doc.ID.String()] = doc.Clone()
	return s.maybeCheckpointLocked()
}

// Delete removes a document, returning whether one was present. Delete is
// idempotent: deleting twice is not an error.
func (s *Store) Delete(id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.docs[id.String()]
	if !existed {
		return false, nil
	}
	if _, err := s.wal.append(OpDelete, []byte(id.String())); err != nil {
		return false, err
	}
	delete(s.docs, id.String())
	return true, s.maybeCheckpointLocked()
}

// ListAll returns a snapshot of every document as of the call.
func (s *Store) ListAll() []*types.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Clone())
	}
	return out
}

// Count returns the number of documents currently stored.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) maybeCheckpointLocked() error {
	s.writes++
	if s.writes < s.cfg.CheckpointEvery && time.Since(s.lastCkp) < s.cfg.CheckpointInterval {
		return nil
	}
	return s.checkpointLocked()
}

// Flush forces an immediate checkpoint, making all prior writes durable
// in the page file and truncating the WAL past the checkpoint LSN.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpointLocked()
}

func (s *Store) checkpointLocked() error {
	lsn := s.wal.nextLSN - 1
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(pagesBucket); err != nil {
			return err
		}
		pages, err := tx.CreateBucket(pagesBucket)
		if err != nil {
			return err
		}
		for id, doc := range s.docs {
			b, err := json.Marshal(toDisk(doc))
			if err != nil {
				return err
			}
			if err := pages.Put([]byte(id), b); err != nil {
				return err
			}
		}
		meta := tx.Bucket(metaBucket)
		return meta.Put(checkpointLSNKey, encodeUint64(lsn))
	})
	if err != nil {
		if isDiskFull(err) {
			return kerrors.Wrap(kerrors.ResourceExhausted, "checkpoint", err)
		}
		return kerrors.Wrap(kerrors.Internal, "checkpoint", err)
	}
	if err := s.wal.truncate(); err != nil {
		return err
	}
	s.writes = 0
	s.lastCkp = time.Now()
	s.logger.Debug().Uint64("lsn", lsn).Int("documents", len(s.docs)).Msg("checkpoint complete")
	return nil
}

// Close flushes and releases all file handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkpointLocked(); err != nil {
		return err
	}
	if err := s.wal.close(); err != nil {
		return err
	}
	return s.db.Close()
}
