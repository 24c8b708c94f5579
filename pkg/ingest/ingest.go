// Package ingest implements the ingestion pipeline: it walks a
// repository, stores each file as a document, optionally extracts symbols
// and builds the dependency graph via the relationship bridge, then
// commits a manifest summarizing the run.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/kotadb/kotadb/pkg/bridge"
	"github.com/kotadb/kotadb/pkg/graph"
	"github.com/kotadb/kotadb/pkg/index/primary"
	"github.com/kotadb/kotadb/pkg/index/trigram"
	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/log"
	"github.com/kotadb/kotadb/pkg/metrics"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/symboldb"
	"github.com/kotadb/kotadb/pkg/types"
)

// FileRecord is one file surfaced by a Walker: its repo-relative path,
// contents, and (optionally) the most recent commit that touched it. The
// pipeline treats CommitMeta as opaque free text; producing it from an
// actual VCS is an external collaborator's concern, matching how the
// reference parser is injected rather than built in.
type FileRecord struct {
	Path       string
	Content    []byte
	CommitMeta string
}

// Walker discovers the files a repository ingestion should process.
type Walker interface {
	Walk(repoPath string) ([]FileRecord, error)
}

// WalkerFunc adapts a plain function to Walker.
type WalkerFunc func(repoPath string) ([]FileRecord, error)

func (f WalkerFunc) Walk(repoPath string) ([]FileRecord, error) { return f(repoPath) }

// FilesystemWalker walks every regular file under repoPath, skipping
// dot-directories (.git, .kotadb, ...). It ignores commit metadata.
func FilesystemWalker() Walker {
	return WalkerFunc(func(repoPath string) ([]FileRecord, error) {
		var out []FileRecord
		err := filepath.WalkDir(repoPath, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() != "." && len(d.Name()) > 0 && d.Name()[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(repoPath, path)
			if err != nil {
				rel = path
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return nil // unreadable files are left out of the result; no per-file error is recorded for them
			}
			out = append(out, FileRecord{Path: filepath.ToSlash(rel), Content: content})
			return nil
		})
		if err != nil {
			return nil, kerrors.Wrap(kerrors.Internal, "walk repository", err)
		}
		return out, nil
	})
}

// SymbolParser is the external collaborator that extracts symbols from
// one file's contents, analogous to bridge.ReferenceParser.
type SymbolParser interface {
	ParseSymbols(path string, content []byte) ([]types.Symbol, error)
}

// Options configures one ingestion run, matching the service layer's
// IndexCodebaseOptions field for field.
type Options struct {
	RepoPath         string
	Prefix           string
	IncludeFiles     bool // store file contents as documents; symbols are extracted either way
	IncludeCommits   bool
	MaxFileSizeMB    int
	MaxMemoryMB      int // 0 means unbounded
	MaxParallelFiles int
	EnableChunking   bool // flush components whenever ~MaxMemoryMB of content has accumulated
	ExtractSymbols   bool
	NoSymbols        bool
	Quiet            bool
}

// DefaultOptions enables file storage and symbol extraction with
// conservative size and parallelism bounds.
func DefaultOptions(repoPath string) Options {
	return Options{
		RepoPath:         repoPath,
		IncludeFiles:     true,
		MaxFileSizeMB:    10,
		MaxParallelFiles: 8,
		ExtractSymbols:   true,
	}
}

func (o Options) maxFileSizeBytes() int64 {
	if o.MaxFileSizeMB <= 0 {
		return 10 << 20
	}
	return int64(o.MaxFileSizeMB) << 20
}

func (o Options) parallelism() int64 {
	if o.MaxParallelFiles <= 0 {
		return 8
	}
	return int64(o.MaxParallelFiles)
}

// memoryCapBytes returns the chunked-flush threshold, or 0 when memory
// use is unbounded.
func (o Options) memoryCapBytes() int64 {
	if !o.EnableChunking || o.MaxMemoryMB <= 0 {
		return 0
	}
	return int64(o.MaxMemoryMB) << 20
}

// Progress is reported on the caller's channel as the run advances, so
// long-running ingestions stay observable and cancellable.
type Progress struct {
	Stage          string
	FilesDone      int
	FilesTotal     int
	SymbolsWritten int
}

// FileError records one file that failed processing without aborting the
// batch.
type FileError struct {
	Path string
	Err  error
}

// Manifest is committed to disk at the end of a run and also returned as
// Result.Manifest.
type Manifest struct {
	FileCount   int   `yaml:"file_count"`
	SymbolCount int   `yaml:"symbol_count"`
	EdgeCount   int   `yaml:"edge_count"`
	ElapsedMS   int64 `yaml:"elapsed_ms"`
}

// Result is the outcome of one ingestion run.
type Result struct {
	Manifest Manifest
	Errors   []FileError
}

// Components bundles the already-open storage components a Pipeline
// writes into. SymbolDBPath and Graph are optional: when SymbolDBPath is
// empty, symbol extraction and the dependency graph step are both
// skipped regardless of Options.
type Components struct {
	Storage      *storage.Store
	PrimaryIdx   *primary.Index
	TrigramIdx   *trigram.Index
	SymbolDBPath string
	Graph        *graph.Store
}

// Pipeline runs the ingestion steps against a fixed set of storage
// components, using externally supplied parsing collaborators.
type Pipeline struct {
	comp   Components
	parser SymbolParser
	refs   bridge.ReferenceParser
	bridge *bridge.Bridge
	walker Walker
}

// New constructs a Pipeline. parser and refs may be nil when symbol
// extraction is never requested by any Options passed to Run.
func New(comp Components, walker Walker, parser SymbolParser, refs bridge.ReferenceParser) *Pipeline {
	if walker == nil {
		walker = FilesystemWalker()
	}
	return &Pipeline{comp: comp, parser: parser, refs: refs, bridge: bridge.New(bridge.DefaultOptions()), walker: walker}
}

// Run executes one ingestion pass. It never returns an error for
// individual file failures; those land in Result.Errors. It returns a
// top-level error only for conditions that make the whole run impossible
// (the walk itself failing, or cancellation before any file is handed
// out).
func (p *Pipeline) Run(ctx context.Context, opts Options, progress chan<- Progress) (*Result, error) {
	start := time.Now()
	logger := log.WithComponent("ingest")

	files, err := p.walker.Walk(opts.RepoPath)
	if err != nil {
		return nil, err
	}
	sendProgress(progress, Progress{Stage: "walk", FilesTotal: len(files)})

	result := &Result{}
	var (
		mu              sync.Mutex
		done            int
		symbols         []types.Symbol
		fileSources     []bridge.FileSource
		bytesSinceFlush int64
	)

	sem := semaphore.NewWeighted(opts.parallelism())
	group, gctx := errgroup.WithContext(ctx)

	extractSymbols := opts.ExtractSymbols && !opts.NoSymbols && p.comp.SymbolDBPath != "" && p.parser != nil
	memCap := opts.memoryCapBytes()

	for i, f := range files {
		f := f
		if err := sem.Acquire(gctx, 1); err != nil {
			if i == 0 {
				return nil, kerrors.Wrap(kerrors.Timeout, "ingestion cancelled before any file was handed out", err)
			}
			break // context cancelled; remaining files are simply not processed
		}
		group.Go(func() error {
			defer sem.Release(1)
			syms, err := p.processFile(gctx, opts, f, extractSymbols)
			mu.Lock()
			done++
			flushDue := false
			if err != nil {
				result.Errors = append(result.Errors, FileError{Path: f.Path, Err: err})
			} else {
				result.Manifest.FileCount++
				if len(syms) > 0 {
					symbols = append(symbols, syms...)
				}
				if extractSymbols {
					fileSources = append(fileSources, bridge.FileSource{Path: f.Path, Content: f.Content})
				}
				if memCap > 0 {
					bytesSinceFlush += int64(len(f.Content))
					if bytesSinceFlush >= memCap {
						bytesSinceFlush = 0
						flushDue = true
					}
				}
			}
			filesDone, symCount := done, len(symbols)
			sendProgress(progress, Progress{Stage: "index", FilesDone: filesDone, FilesTotal: len(files), SymbolsWritten: symCount})
			mu.Unlock()
			if flushDue {
				// Checkpointing the store truncates its WAL and the index
				// flushes persist their dirty state, so in-memory growth
				// between flushes stays near the configured cap.
				p.flushComponents(logger)
				sendProgress(progress, Progress{Stage: "flush", FilesDone: filesDone, FilesTotal: len(files), SymbolsWritten: symCount})
			}
			return nil
		})
	}
	_ = group.Wait() // per-file errors are collected in result.Errors, not propagated

	if extractSymbols && len(symbols) > 0 {
		if err := p.writeSymbolsAndGraph(ctx, opts, symbols, fileSources, result, progress); err != nil {
			logger.Warn().Err(err).Msg("symbol db or dependency graph step failed, continuing without it")
		}
	}

	result.Manifest.ElapsedMS = time.Since(start).Milliseconds()
	metrics.IngestionDuration.Observe(time.Since(start).Seconds())
	metrics.IngestionFilesTotal.WithLabelValues("ok").Add(float64(result.Manifest.FileCount))
	metrics.IngestionFilesTotal.WithLabelValues("error").Add(float64(len(result.Errors)))
	metrics.IngestionSymbolsExtracted.Add(float64(result.Manifest.SymbolCount))

	if err := p.commitManifest(opts, result.Manifest); err != nil {
		logger.Warn().Err(err).Msg("manifest commit failed")
	}
	sendProgress(progress, Progress{Stage: "done", FilesDone: done, FilesTotal: len(files), SymbolsWritten: result.Manifest.SymbolCount})
	return result, nil
}

func (p *Pipeline) processFile(ctx context.Context, opts Options, f FileRecord, extractSymbols bool) ([]types.Symbol, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if int64(len(f.Content)) > opts.maxFileSizeBytes() {
		return nil, kerrors.Newf(kerrors.ResourceExhausted, "file %q exceeds max_file_size_mb", f.Path)
	}

	if opts.IncludeFiles {
		docPath := f.Path
		if opts.Prefix != "" {
			docPath = opts.Prefix + "/" + f.Path
		}
		path, err := types.NewPath(docPath)
		if err != nil {
			return nil, err
		}
		title, err := types.NewTitle(lastSegment(f.Path))
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		doc := &types.Document{ID: types.NewID(), Path: path, Title: title, Content: f.Content, CreatedAt: now, UpdatedAt: now}

		if err := p.comp.Storage.Insert(doc); err != nil {
			return nil, err
		}
		if err := p.comp.PrimaryIdx.Insert(doc.ID, doc.Path); err != nil {
			return nil, err
		}
		p.comp.TrigramIdx.Index(doc.ID, doc.Content)
	}

	if !extractSymbols {
		return nil, nil
	}
	syms, err := p.parser.ParseSymbols(f.Path, f.Content)
	if err != nil {
		// a failed parse disables symbol emission for this file only; the
		// document itself is still indexed above.
		return nil, nil
	}
	return syms, nil
}

func (p *Pipeline) writeSymbolsAndGraph(ctx context.Context, opts Options, symbols []types.Symbol, files []bridge.FileSource, result *Result, progress chan<- Progress) error {
	builder := symboldb.NewBuilder()
	for _, s := range symbols {
		builder.Add(s)
	}
	if err := builder.WriteFile(p.comp.SymbolDBPath); err != nil {
		return err
	}
	result.Manifest.SymbolCount = builder.Len()
	sendProgress(progress, Progress{Stage: "symbols", SymbolsWritten: builder.Len()})

	if p.comp.Graph == nil || p.refs == nil {
		return nil
	}
	reader, err := symboldb.Open(p.comp.SymbolDBPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	depGraph, err := p.bridge.Build(ctx, reader, p.refs, files)
	if err != nil {
		return err
	}
	for _, s := range symbols {
		node := graph.Node{ID: s.ID, NodeType: s.Kind.String(), QualifiedName: s.Name, FilePath: s.FilePath, UpdatedAt: time.Now().UTC()}
		if err := p.comp.Graph.StoreNode(node); err != nil {
			return err
		}
	}
	for _, e := range depGraph.Edges {
		edge := graph.Edge{Source: e.Source, Target: e.Target, Kind: e.Kind, Location: e.Location}
		if err := p.comp.Graph.StoreEdge(edge); err != nil {
			continue // endpoint races against concurrent deletes are not fatal to the batch
		}
		result.Manifest.EdgeCount++
	}
	return p.comp.Graph.Sync()
}

// flushComponents checkpoints the document store and persists both
// indices mid-run. A flush failure is logged, not fatal: the run can
// still finish and the final Flush on close retries.
func (p *Pipeline) flushComponents(logger zerolog.Logger) {
	if err := p.comp.Storage.Flush(); err != nil {
		logger.Warn().Err(err).Msg("chunked storage flush failed")
	}
	if err := p.comp.PrimaryIdx.Flush(); err != nil {
		logger.Warn().Err(err).Msg("chunked primary index flush failed")
	}
	if err := p.comp.TrigramIdx.Flush(); err != nil {
		logger.Warn().Err(err).Msg("chunked trigram index flush failed")
	}
}

func (p *Pipeline) commitManifest(opts Options, m Manifest) error {
	if opts.RepoPath == "" {
		return nil
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(opts.RepoPath, ".kotadb-manifest.yaml"), b, 0o644)
}

func sendProgress(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
