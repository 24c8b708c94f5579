package trigram

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/log"
	"github.com/kotadb/kotadb/pkg/types"
)

const postingsFormatVersion = 1

type postingsMeta struct {
	Version    uint32 `json:"version"`
	ShardCount int    `json:"shard_count"`
}

type postingRecord struct {
	ID      string `json:"id"`
	Content []byte `json:"content"`
}

// Save persists the index's document contents under dir. The posting
// lists themselves are not serialized; Open rebuilds them from the saved
// contents, since the index is rebuildable from the document store by
// contract.
func (idx *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return kerrors.Wrap(kerrors.Internal, "create trigram dir", err)
	}

	meta := postingsMeta{Version: postingsFormatVersion, ShardCount: idx.nshards}
	if err := writeAtomicJSON(filepath.Join(dir, "meta.json"), meta); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, "contents.jsonl") + ".tmp")
	if err != nil {
		return kerrors.Wrap(kerrors.Internal, "create contents file", err)
	}
	w := bufio.NewWriter(f)

	idx.mu.RLock()
	for docID, content := range idx.contents {
		rec := postingRecord{ID: docID, Content: content}
		b, err := json.Marshal(rec)
		if err != nil {
			idx.mu.RUnlock()
			f.Close()
			return kerrors.Wrap(kerrors.Internal, "marshal posting record", err)
		}
		if _, err := w.Write(b); err != nil {
			idx.mu.RUnlock()
			f.Close()
			return kerrors.Wrap(kerrors.Internal, "write posting record", err)
		}
		if _, err := w.WriteString("\n"); err != nil {
			idx.mu.RUnlock()
			f.Close()
			return kerrors.Wrap(kerrors.Internal, "write posting record", err)
		}
	}
	idx.mu.RUnlock()

	if err := w.Flush(); err != nil {
		f.Close()
		return kerrors.Wrap(kerrors.Internal, "flush contents file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return kerrors.Wrap(kerrors.Internal, "sync contents file", err)
	}
	if err := f.Close(); err != nil {
		return kerrors.Wrap(kerrors.Internal, "close contents file", err)
	}
	if err := os.Rename(filepath.Join(dir, "contents.jsonl")+".tmp", filepath.Join(dir, "contents.jsonl")); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.dir = dir
	idx.mu.Unlock()
	return nil
}

// Open loads an index previously written by Save, rebuilding posting
// lists from the saved document contents. A corrupted contents file
// triggers a rebuild from whatever valid records precede the corruption,
// rather than a hard failure.
func Open(dir string) (*Index, error) {
	var meta postingsMeta
	if err := readJSON(filepath.Join(dir, "meta.json"), &meta); err != nil {
		return nil, kerrors.Wrap(kerrors.CorruptedFile, "read trigram meta.json", err).WithField("metadata")
	}
	if meta.Version != postingsFormatVersion {
		return nil, kerrors.Newf(kerrors.UnsupportedVersion, "trigram index metadata version %d unsupported", meta.Version).WithField("version")
	}

	idx := NewWithShards(meta.ShardCount)

	f, err := os.Open(filepath.Join(dir, "contents.jsonl"))
	if err != nil {
		return nil, kerrors.Wrap(kerrors.CorruptedFile, "open trigram contents", err).WithField("contents")
	}
	defer f.Close()

	logger := log.WithComponent("trigram")
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	loaded := 0
	for scanner.Scan() {
		var rec postingRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			logger.Warn().Err(err).Int("loaded", loaded).Msg("trigram contents record corrupted, rebuilding from valid prefix")
			break
		}
		id, err := types.ParseID(rec.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("trigram contents record has invalid id, skipping")
			continue
		}
		idx.Index(id, rec.Content)
		loaded++
	}
	idx.dir = dir
	return idx, nil
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
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
