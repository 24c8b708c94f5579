package service

import (
	"fmt"
	"strings"
)

// BasicStats reports corpus-size counters, gated by StatsOptions.Basic.
type BasicStats struct {
	Documents int
	Indexed   int // primary index entry count; should equal Documents
}

// SymbolStats reports symbol-database counters, gated by
// StatsOptions.Symbols. Present is false when no symbol DB is open.
type SymbolStats struct {
	Present bool
	Total   int
	ByKind  map[string]int
}

// RelationshipStats reports graph-store counters, gated by
// StatsOptions.Relationships. Present is false when no graph store is
// open.
type RelationshipStats struct {
	Present bool
	Nodes   int
	Edges   int
}

// StatsResult is StatsService.Stats's structured output.
type StatsResult struct {
	Basic         *BasicStats
	Symbols       *SymbolStats
	Relationships *RelationshipStats
	Human         string
}

// StatsService reports corpus-size statistics across storage and indices.
type StatsService struct {
	db DatabaseAccess
}

func NewStatsService(db DatabaseAccess) *StatsService {
	return &StatsService{db: db}
}

// Stats gathers the sections requested by opts.
func (s *StatsService) Stats(opts StatsOptions) (StatsResult, error) {
	opts = opts.Normalize()
	var result StatsResult

	if opts.Basic {
		primaryIdx := s.db.PrimaryIndex()
		result.Basic = &BasicStats{
			Documents: s.db.Storage().Count(),
			Indexed:   primaryIdx.Count(),
		}
	}

	if opts.Symbols {
		stat := &SymbolStats{ByKind: make(map[string]int)}
		if reader, ok := s.db.SymbolDB(); ok {
			stat.Present = true
			stat.Total = reader.Count()
			all, err := reader.All()
			if err == nil {
				for _, sym := range all {
					stat.ByKind[sym.Kind.String()]++
				}
			}
		}
		result.Symbols = stat
	}

	if opts.Relationships {
		stat := &RelationshipStats{}
		if g, ok := s.db.Graph(); ok {
			stat.Present = true
			stat.Nodes = g.NodeCount()
			stat.Edges = g.EdgeCount()
		}
		result.Relationships = stat
	}

	result.Human = formatStatsHuman(result, opts.Quiet)
	return result, nil
}

func formatStatsHuman(r StatsResult, quiet bool) string {
	if quiet {
		return ""
	}
	var b strings.Builder
	if r.Basic != nil {
		fmt.Fprintf(&b, "documents: %d (indexed: %d)\n", r.Basic.Documents, r.Basic.Indexed)
	}
	if r.Symbols != nil {
		if r.Symbols.Present {
			fmt.Fprintf(&b, "symbols: %d\n", r.Symbols.Total)
			for kind, n := range r.Symbols.ByKind {
				fmt.Fprintf(&b, "  %s: %d\n", kind, n)
			}
		} else {
			b.WriteString("symbols: not available\n")
		}
	}
	if r.Relationships != nil {
		if r.Relationships.Present {
			fmt.Fprintf(&b, "graph: %d nodes, %d edges\n", r.Relationships.Nodes, r.Relationships.Edges)
		} else {
			b.WriteString("graph: not available\n")
		}
	}
	return b.String()
}
