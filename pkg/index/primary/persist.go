package primary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kotadb/kotadb/pkg/btree"
	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

const formatVersion = 1

type metadata struct {
	Version      uint32    `json:"version"`
	DocumentCount int      `json:"document_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type dataEntry struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Save persists the index under dir, writing meta/metadata.json and
// data/btree_data.json via a temp-file-then-rename so a crash mid-write
// never leaves a partially-written file in place.
func (idx *Index) Save(dir string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(dir, "meta"), 0o755); err != nil {
		return kerrors.Wrap(kerrors.Internal, "create meta dir", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		return kerrors.Wrap(kerrors.Internal, "create data dir", err)
	}

	meta := metadata{
		Version:       formatVersion,
		DocumentCount: len(idx.byID),
		CreatedAt:     idx.created,
		UpdatedAt:     idx.updated,
	}
	if err := writeAtomicJSON(filepath.Join(dir, "meta", "metadata.json"), meta); err != nil {
		return err
	}

	entries := make([]dataEntry, 0, len(idx.byID))
	for id, path := range idx.byID {
		entries = append(entries, dataEntry{ID: id, Path: path})
	}
	if err := writeAtomicJSON(filepath.Join(dir, "data", "btree_data.json"), entries); err != nil {
		return err
	}
	idx.dir = dir
	return nil
}

// Open loads a primary index previously written by Save. It validates
// the metadata version and every entry's id/path before accepting them,
// failing UnsupportedVersion on a version mismatch and Corrupted{field}
// on the first unreadable file or invalid entry.
func Open(dir string, maxKeys int) (*Index, error) {
	var meta metadata
	if err := readJSON(filepath.Join(dir, "meta", "metadata.json"), &meta); err != nil {
		return nil, kerrors.Wrap(kerrors.CorruptedFile, "read metadata.json", err).WithField("metadata")
	}
	if meta.Version != formatVersion {
		return nil, kerrors.Newf(kerrors.UnsupportedVersion, "primary index metadata version %d unsupported", meta.Version).WithField("version")
	}

	var entries []dataEntry
	if err := readJSON(filepath.Join(dir, "data", "btree_data.json"), &entries); err != nil {
		return nil, kerrors.Wrap(kerrors.CorruptedFile, "read btree_data.json", err).WithField("data")
	}

	idx := New(maxKeys)
	idx.created = meta.CreatedAt
	idx.updated = meta.UpdatedAt

	var pairs []btree.Pair[string, string]
	for _, e := range entries {
		id, err := types.ParseID(e.ID)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.CorruptedRecord, "invalid id in btree_data.json", err).WithField("id")
		}
		path, err := types.NewPath(e.Path)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.CorruptedRecord, "invalid path in btree_data.json", err).WithField("path")
		}
		idx.byID[id.String()] = path.String()
		pairs = append(pairs, btree.Pair[string, string]{Key: path.String(), Value: id.String()})
	}
	sortPairsByKey(pairs)
	idx.tree, _ = btree.BulkInsert[string, string](nil, pairs, idx.maxKeys)
	idx.dir = dir
	return idx, nil
}

func sortPairsByKey(pairs []btree.Pair[string, string]) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
}

func writeAtomicJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return kerrors.Wrap(kerrors.Internal, "marshal json", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return kerrors.Wrap(kerrors.Internal, "write temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return kerrors.Wrap(kerrors.Internal, "rename temp file", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
