package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

func newTestDoc(t *testing.T, path, content string) *types.Document {
	t.Helper()
	p, err := types.NewPath(path)
	require.NoError(t, err)
	title, err := types.NewTitle("T")
	require.NoError(t, err)
	return &types.Document{ID: types.NewID(), Path: p, Title: title, Content: []byte(content)}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertGetDelete(t *testing.T) {
	s := openTestStore(t)
	doc := newTestDoc(t, "a.md", "hello")

	require.NoError(t, s.Insert(doc))
	got, ok := s.Get(doc.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got.Content))
	assert.True(t, got.UpdatedAt.Equal(got.CreatedAt) || got.UpdatedAt.After(got.CreatedAt))

	deleted, err := s.Delete(doc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, ok = s.Get(doc.ID)
	assert.False(t, ok)
}

func TestInsertDuplicateFails(t *testing.T) {
	s := openTestStore(t)
	doc := newTestDoc(t, "a.md", "hello")
	require.NoError(t, s.Insert(doc))
	err := s.Insert(doc)
	require.Error(t, err)
	assert.Equal(t, kerrors.AlreadyExists, kerrors.KindOf(err))
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	doc := newTestDoc(t, "a.md", "hello")
	require.NoError(t, s.Insert(doc))

	first, err := s.Delete(doc.ID)
	require.NoError(t, err)
	second, err := s.Delete(doc.ID)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}

func TestUpdateEnforcesMonotonicTimestamps(t *testing.T) {
	s := openTestStore(t)
	doc := newTestDoc(t, "a.md", "v1")
	require.NoError(t, s.Insert(doc))

	updated := doc.Clone()
	updated.Content = []byte("v2")
	updated.UpdatedAt = doc.CreatedAt.Add(time.Hour)
	require.NoError(t, s.Update(updated))

	got, _ := s.Get(doc.ID)
	assert.Equal(t, "v2", string(got.Content))
	assert.True(t, got.CreatedAt.Equal(doc.CreatedAt))

	regressed := got.Clone()
	regressed.UpdatedAt = doc.CreatedAt.Add(-time.Hour)
	err := s.Update(regressed)
	require.Error(t, err)
	assert.Equal(t, kerrors.Validation, kerrors.KindOf(err))
}

func TestUpdateMissingFails(t *testing.T) {
	s := openTestStore(t)
	doc := newTestDoc(t, "a.md", "v1")
	err := s.Update(doc)
	require.Error(t, err)
	assert.Equal(t, kerrors.NotFound, kerrors.KindOf(err))
}

func TestListAllSnapshot(t *testing.T) {
	s := openTestStore(t)
	d1 := newTestDoc(t, "a.md", "1")
	d2 := newTestDoc(t, "b.md", "2")
	require.NoError(t, s.Insert(d1))
	require.NoError(t, s.Insert(d2))
	all := s.ListAll()
	assert.Len(t, all, 2)
}

func TestReopenReplaysWAL(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	doc := newTestDoc(t, "a.md", "hello")
	require.NoError(t, s.Insert(doc))
	require.NoError(t, s.wal.f.Sync())
	// Close without an explicit flush by bypassing Close's checkpoint: simulate
	// a crash by reopening directly against the same directory.
	require.NoError(t, s.db.Close())
	require.NoError(t, s.wal.close())

	reopened, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.Get(doc.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got.Content))
}

func TestFlushCheckpointsAndTruncatesWAL(t *testing.T) {
	s := openTestStore(t)
	doc := newTestDoc(t, "a.md", "hello")
	require.NoError(t, s.Insert(doc))
	require.NoError(t, s.Flush())
	// The insert took LSN 1; numbering continues past the checkpoint while
	// the WAL file itself is emptied.
	assert.Equal(t, uint64(2), s.wal.nextLSN)
	fi, err := s.wal.f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size())
}
