// Package bridge implements the relationship bridge: given a built
// binary symbol database and the repository's file contents, it produces
// a DependencyGraph of edges between symbol ids. It is read-only with
// respect to the symbol database.
package bridge

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/log"
	"github.com/kotadb/kotadb/pkg/types"
)

// ReferenceParser is the external parser collaborator, treated as a pure
// function from file contents to references. The bridge only consumes
// this interface; it never parses source itself.
type ReferenceParser interface {
	ParseReferences(path string, content []byte) ([]types.Reference, error)
}

// SymbolSource exposes the subset of symboldb.Reader the bridge needs,
// kept as an interface so tests can substitute an in-memory fake instead
// of building a real mmap'd file.
type SymbolSource interface {
	All() ([]types.Symbol, error)
}

// FileSource is one repository file to scan for references.
type FileSource struct {
	Path    string
	Content []byte
}

// Options configures the bridge. Whether import references become edges
// has historically been ambiguous, so CountImports makes it configurable
// rather than deciding outright; it defaults to false to match prior
// behavior.
type Options struct {
	MaxFileSize  int64
	Languages    []string // file extensions to process, e.g. ".go"; empty means all
	CountImports bool
}

// DefaultOptions caps files at 5MB and leaves import edges off.
func DefaultOptions() Options {
	return Options{MaxFileSize: 5 << 20, CountImports: false}
}

// Degree is the in/out edge count of one symbol, part of the bridge's
// finalized stats.
type Degree struct {
	In  int
	Out int
}

// Stats summarizes one Build call.
type Stats struct {
	FilesProcessed       int
	ReferencesFound      int
	EdgesEmitted         int
	UnresolvedReferences int
	Degrees              map[types.ID]Degree
}

// DependencyGraph is the bridge's output: a flat edge list plus the stats
// that were computed alongside it. Persisting it into the graph store
// is the caller's responsibility (the ingestion pipeline does this).
type DependencyGraph struct {
	Edges []types.Edge
	Stats Stats
}

type symbolIndex struct {
	byID   map[types.ID]types.Symbol
	byName map[string][]types.ID
	byFile map[string][]types.Symbol // sorted by StartLine
}

func buildIndex(symbols []types.Symbol) symbolIndex {
	idx := symbolIndex{
		byID:   make(map[types.ID]types.Symbol, len(symbols)),
		byName: make(map[string][]types.ID),
		byFile: make(map[string][]types.Symbol),
	}
	for _, sym := range symbols {
		idx.byID[sym.ID] = sym
		idx.byName[sym.Name] = append(idx.byName[sym.Name], sym.ID)
		idx.byFile[sym.FilePath] = append(idx.byFile[sym.FilePath], sym)
	}
	for path := range idx.byFile {
		list := idx.byFile[path]
		sort.Slice(list, func(i, j int) bool { return list[i].StartLine < list[j].StartLine })
		idx.byFile[path] = list
	}
	return idx
}

// enclosingSymbol returns the narrowest symbol in path whose line range
// brackets line.
func (idx symbolIndex) enclosingSymbol(path string, line uint32) (types.Symbol, bool) {
	var best types.Symbol
	found := false
	for _, sym := range idx.byFile[path] {
		if sym.Contains(line) {
			if !found || (sym.EndLine-sym.StartLine) < (best.EndLine-best.StartLine) {
				best = sym
				found = true
			}
		}
	}
	return best, found
}

// resolveName maps a reference's bare name to a symbol id, preferring a
// candidate declared in the same file when the name is ambiguous.
func (idx symbolIndex) resolveName(name, fromFile string) (types.ID, bool) {
	candidates := idx.byName[name]
	if len(candidates) == 0 {
		return types.ID{}, false
	}
	for _, id := range candidates {
		if idx.byID[id].FilePath == fromFile {
			return id, true
		}
	}
	return candidates[0], true
}

// Bridge builds dependency graphs from a symbol source and a reference
// parser collaborator.
type Bridge struct {
	opts Options
}

// New constructs a Bridge with the given options.
func New(opts Options) *Bridge {
	return &Bridge{opts: opts}
}

func (b *Bridge) languageAllowed(path string) bool {
	if len(b.opts.Languages) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range b.opts.Languages {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// Build loads every symbol, scans each eligible file for references via
// parser, resolves each reference to a symbol id, and emits edges. A
// failed parse on one file is recorded but does not abort the batch,
// matching the ingestion pipeline's failure semantics.
func (b *Bridge) Build(ctx context.Context, source SymbolSource, parser ReferenceParser, files []FileSource) (*DependencyGraph, error) {
	symbols, err := source.All()
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Internal, "load symbols for relationship bridge", err)
	}
	idx := buildIndex(symbols)
	logger := log.WithComponent("bridge")

	graph := &DependencyGraph{Stats: Stats{Degrees: make(map[types.ID]Degree)}}

	for _, f := range files {
		select {
		case <-ctx.Done():
			return graph, kerrors.Wrap(kerrors.Timeout, "relationship bridge build cancelled", ctx.Err())
		default:
		}

		if !b.languageAllowed(f.Path) {
			continue
		}
		if b.opts.MaxFileSize > 0 && int64(len(f.Content)) > b.opts.MaxFileSize {
			continue
		}

		refs, err := parser.ParseReferences(f.Path, f.Content)
		if err != nil {
			logger.Warn().Str("file", f.Path).Err(err).Msg("reference parse failed, skipping file")
			continue
		}
		graph.Stats.FilesProcessed++
		graph.Stats.ReferencesFound += len(refs)

		for _, ref := range refs {
			if ref.Kind == types.RefImport && !b.opts.CountImports {
				continue
			}
			enclosing, ok := idx.enclosingSymbol(f.Path, ref.Location.Line)
			if !ok {
				graph.Stats.UnresolvedReferences++
				continue
			}
			targetID, ok := idx.resolveName(ref.Name, f.Path)
			if !ok {
				graph.Stats.UnresolvedReferences++
				continue
			}
			if enclosing.ID.Equal(targetID) {
				continue // self-references are skipped, not edges
			}

			relKind := types.RelationKindFromReference(ref.Kind)
			edge, err := types.NewEdge(enclosing.ID, targetID, relKind, ref.Location)
			if err != nil {
				graph.Stats.UnresolvedReferences++
				continue
			}
			graph.Edges = append(graph.Edges, edge)
			graph.Stats.EdgesEmitted++

			srcDeg := graph.Stats.Degrees[enclosing.ID]
			srcDeg.Out++
			graph.Stats.Degrees[enclosing.ID] = srcDeg

			dstDeg := graph.Stats.Degrees[targetID]
			dstDeg.In++
			graph.Stats.Degrees[targetID] = dstDeg
		}
	}

	return graph, nil
}
