package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kotadb/kotadb/pkg/ingest"
)

// IndexingResult is IndexingService.IndexCodebase's structured output.
type IndexingResult struct {
	Manifest ingest.Manifest
	Errors   []ingest.FileError
	Human    string
}

// IndexingService drives the ingestion pipeline behind the
// IndexCodebaseOptions surface. Unlike the other
// services, it is not constructed over DatabaseAccess: the pipeline needs
// write access to a symbol DB path and an open graph store, which the
// read-oriented capability interface does not expose, so callers hand in
// an already-built *ingest.Pipeline (assembled from the same components
// the database opened).
type IndexingService struct {
	pipeline *ingest.Pipeline
}

// NewIndexingService constructs an IndexingService over an existing
// ingestion pipeline.
func NewIndexingService(pipeline *ingest.Pipeline) *IndexingService {
	return &IndexingService{pipeline: pipeline}
}

// IndexCodebase runs one ingestion pass, translating IndexCodebaseOptions
// to ingest.Options and forwarding progress over progress (may be nil).
func (s *IndexingService) IndexCodebase(ctx context.Context, opts IndexCodebaseOptions, progress chan<- ingest.Progress) (IndexingResult, error) {
	ingestOpts := ingest.Options{
		RepoPath:         opts.RepoPath,
		Prefix:           opts.Prefix,
		IncludeFiles:     opts.IncludeFiles,
		IncludeCommits:   opts.IncludeCommits,
		MaxFileSizeMB:    opts.MaxFileSizeMB,
		MaxMemoryMB:      opts.MaxMemoryMB,
		MaxParallelFiles: opts.MaxParallelFiles,
		EnableChunking:   opts.EnableChunking,
		ExtractSymbols:   opts.ExtractSymbols,
		NoSymbols:        opts.NoSymbols,
		Quiet:            opts.Quiet,
	}

	result, err := s.pipeline.Run(ctx, ingestOpts, progress)
	if err != nil {
		return IndexingResult{}, err
	}

	return IndexingResult{
		Manifest: result.Manifest,
		Errors:   result.Errors,
		Human:    formatIndexingHuman(result.Manifest, result.Errors, opts.Quiet),
	}, nil
}

func formatIndexingHuman(m ingest.Manifest, errs []ingest.FileError, quiet bool) string {
	if quiet {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "indexed %d file(s), %d symbol(s), %d edge(s) in %dms\n", m.FileCount, m.SymbolCount, m.EdgeCount, m.ElapsedMS)
	if len(errs) > 0 {
		fmt.Fprintf(&b, "%d file(s) failed:\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(&b, "  %s: %v\n", e.Path, e.Err)
		}
	}
	return b.String()
}
