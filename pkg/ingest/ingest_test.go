package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/pkg/graph"
	"github.com/kotadb/kotadb/pkg/index/primary"
	"github.com/kotadb/kotadb/pkg/index/trigram"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/types"
)

type fakeWalker struct{ files []FileRecord }

func (f fakeWalker) Walk(repoPath string) ([]FileRecord, error) { return f.files, nil }

type fakeSymbolParser struct{}

func (fakeSymbolParser) ParseSymbols(path string, content []byte) ([]types.Symbol, error) {
	return []types.Symbol{{
		ID: types.NewID(), Name: "main", Kind: types.SymbolFunction,
		FilePath: path, StartLine: 1, EndLine: 3,
	}}, nil
}

type fakeRefParser struct{}

func (fakeRefParser) ParseReferences(path string, content []byte) ([]types.Reference, error) {
	return nil, nil
}

func openComponents(t *testing.T) (Components, func()) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "storage"), storage.DefaultConfig())
	require.NoError(t, err)
	g, err := graph.Open(filepath.Join(dir, "graph"), graph.DefaultConfig())
	require.NoError(t, err)
	comp := Components{
		Storage:      store,
		PrimaryIdx:   primary.New(0),
		TrigramIdx:   trigram.New(),
		SymbolDBPath: filepath.Join(dir, "symbols.kota"),
		Graph:        g,
	}
	return comp, func() { store.Close(); g.Close() }
}

func TestRunIndexesFilesAndExtractsSymbols(t *testing.T) {
	comp, cleanup := openComponents(t)
	defer cleanup()

	files := []FileRecord{
		{Path: "a.go", Content: []byte("package a\nfunc main() {}\n")},
		{Path: "b.go", Content: []byte("package b\n")},
	}
	p := New(comp, fakeWalker{files: files}, fakeSymbolParser{}, fakeRefParser{})

	opts := DefaultOptions(t.TempDir())
	result, err := p.Run(context.Background(), opts, nil)
	require.NoError(t, err)
	require.Equal(t, 2, result.Manifest.FileCount)
	require.Empty(t, result.Errors)
	require.Equal(t, 2, result.Manifest.SymbolCount)
	require.Equal(t, 2, comp.Storage.Count())
	require.Equal(t, 2, comp.PrimaryIdx.Count())
}

func TestRunRecordsPerFileErrorsWithoutAbortingBatch(t *testing.T) {
	comp, cleanup := openComponents(t)
	defer cleanup()

	files := []FileRecord{
		{Path: "", Content: []byte("bad path")}, // fails types.NewPath
		{Path: "good.go", Content: []byte("package good\n")},
	}
	p := New(comp, fakeWalker{files: files}, nil, nil)
	opts := DefaultOptions(t.TempDir())
	opts.ExtractSymbols = false

	result, err := p.Run(context.Background(), opts, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Manifest.FileCount)
	require.Len(t, result.Errors, 1)
}

func TestRunSkipsDocumentStorageWhenIncludeFilesFalse(t *testing.T) {
	comp, cleanup := openComponents(t)
	defer cleanup()

	files := []FileRecord{
		{Path: "a.go", Content: []byte("package a\nfunc main() {}\n")},
		{Path: "b.go", Content: []byte("package b\n")},
	}
	p := New(comp, fakeWalker{files: files}, fakeSymbolParser{}, fakeRefParser{})

	opts := DefaultOptions(t.TempDir())
	opts.IncludeFiles = false

	result, err := p.Run(context.Background(), opts, nil)
	require.NoError(t, err)
	require.Equal(t, 2, result.Manifest.FileCount)
	require.Equal(t, 0, comp.Storage.Count(), "content must not be stored when include_files is off")
	require.Equal(t, 0, comp.PrimaryIdx.Count())
	require.Equal(t, 2, result.Manifest.SymbolCount, "symbol extraction is independent of include_files")
}

func TestRunChunkedFlushUnderMemoryCap(t *testing.T) {
	comp, cleanup := openComponents(t)
	defer cleanup()

	// Two files whose combined size crosses a 1MB cap, so the second one
	// must trigger a mid-run flush.
	big := make([]byte, 700<<10)
	for i := range big {
		big[i] = 'a' + byte(i%26)
	}
	files := []FileRecord{
		{Path: "big1.txt", Content: big},
		{Path: "big2.txt", Content: big},
	}
	p := New(comp, fakeWalker{files: files}, nil, nil)

	opts := DefaultOptions(t.TempDir())
	opts.ExtractSymbols = false
	opts.EnableChunking = true
	opts.MaxMemoryMB = 1
	opts.MaxParallelFiles = 1

	progress := make(chan Progress, 64)
	result, err := p.Run(context.Background(), opts, progress)
	require.NoError(t, err)
	close(progress)

	var sawFlush bool
	for pr := range progress {
		if pr.Stage == "flush" {
			sawFlush = true
		}
	}
	require.True(t, sawFlush, "crossing the memory cap must flush mid-run")
	require.Equal(t, 2, result.Manifest.FileCount)
	require.Equal(t, 2, comp.Storage.Count())
}

func TestRunReportsProgress(t *testing.T) {
	comp, cleanup := openComponents(t)
	defer cleanup()

	files := []FileRecord{{Path: "a.go", Content: []byte("package a\n")}}
	p := New(comp, fakeWalker{files: files}, nil, nil)
	opts := DefaultOptions(t.TempDir())
	opts.ExtractSymbols = false

	progress := make(chan Progress, 16)
	_, err := p.Run(context.Background(), opts, progress)
	require.NoError(t, err)
	close(progress)

	var sawDone bool
	for p := range progress {
		if p.Stage == "done" {
			sawDone = true
		}
	}
	require.True(t, sawDone)
}
