package service

import (
	"fmt"
	"strings"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// SearchHit is one result row: the full document plus the context snippet
// requested by SearchOptions.Context.
type SearchHit struct {
	Document *types.Document
	Snippet  string
}

// SearchResult is SearchService.Search's structured output.
type SearchResult struct {
	Hits  []SearchHit
	Human string
}

// SymbolSearchResult is SearchService.SearchSymbols's structured output.
type SymbolSearchResult struct {
	Symbols []types.Symbol
	Human   string
}

// SearchService exposes document and symbol search over a database.
type SearchService struct {
	db DatabaseAccess
}

// NewSearchService constructs a SearchService over db.
func NewSearchService(db DatabaseAccess) *SearchService {
	return &SearchService{db: db}
}

// Search runs opts.Query through the query router and hydrates the
// resulting ids into full documents; the indices only return ids.
func (s *SearchService) Search(opts SearchOptions) (SearchResult, error) {
	if err := checkLimit(opts.Limit); err != nil {
		return SearchResult{}, err
	}

	q := types.Query{SearchTerms: splitQuery(opts.Query), Tags: opts.Tags, Limit: opts.Limit}
	r := router(s.db)
	ids, err := r.Search(q)
	if err != nil {
		return SearchResult{}, err
	}

	var hits []SearchHit
	for _, id := range ids {
		doc, ok := s.db.Storage().Get(id)
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Document: doc, Snippet: snippet(doc.Content, opts.Context)})
	}

	return SearchResult{Hits: hits, Human: formatSearchHuman(opts.Query, hits, opts.Quiet)}, nil
}

// SearchSymbols matches a wildcard pattern against the binary symbol
// database's names, optionally filtered by kind.
func (s *SearchService) SearchSymbols(opts SymbolSearchOptions) (SymbolSearchResult, error) {
	reader, ok := s.db.SymbolDB()
	if !ok {
		return SymbolSearchResult{}, kerrors.New(kerrors.NotFound, "symbol database is not open for this database")
	}
	if err := checkLimit(opts.Limit); err != nil {
		return SymbolSearchResult{}, err
	}
	if opts.Limit == 0 {
		return SymbolSearchResult{Human: formatSymbolsHuman(opts.Pattern, nil, opts.Quiet)}, nil
	}

	all, err := reader.All()
	if err != nil {
		return SymbolSearchResult{}, err
	}

	var matched []types.Symbol
	for _, sym := range all {
		if opts.SymbolType != "" && sym.Kind.String() != opts.SymbolType {
			continue
		}
		if !matchSymbolPattern(opts.Pattern, sym.Name) {
			continue
		}
		matched = append(matched, sym)
		if uint32(len(matched)) >= opts.Limit {
			break
		}
	}

	return SymbolSearchResult{Symbols: matched, Human: formatSymbolsHuman(opts.Pattern, matched, opts.Quiet)}, nil
}

// checkLimit enforces the 1000-result ceiling. Limit 0 is a valid input
// meaning "return nothing" — it is passed through, never defaulted, so
// a caller that explicitly asks for zero results gets zero results.
func checkLimit(n uint32) error {
	if n == 0 {
		return nil
	}
	_, err := types.NewLimit(n)
	return err
}

func splitQuery(q string) []string {
	if q == "" {
		return nil
	}
	return []string{q}
}

func matchSymbolPattern(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == name
	}
	parts := strings.Split(pattern, "*")
	idx := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		pos := strings.Index(name[idx:], part)
		if pos < 0 {
			return false
		}
		if i == 0 && pos != 0 {
			return false
		}
		idx += pos + len(part)
	}
	if last := parts[len(parts)-1]; last != "" && !strings.HasSuffix(name, last) {
		return false
	}
	return true
}

func snippet(content []byte, ctx ResultContext) string {
	switch ctx {
	case ContextFull:
		return string(content)
	case ContextMedium:
		return truncate(content, 400)
	case ContextMinimal:
		return truncate(content, 80)
	default:
		return ""
	}
}

func truncate(content []byte, n int) string {
	if len(content) <= n {
		return string(content)
	}
	return string(content[:n]) + "..."
}

func formatSearchHuman(query string, hits []SearchHit, quiet bool) string {
	if quiet {
		return ""
	}
	if len(hits) == 0 {
		return fmt.Sprintf("no results for %q", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d result(s) for %q:\n", len(hits), query)
	for _, h := range hits {
		fmt.Fprintf(&b, "  %s  %s\n", h.Document.ID, h.Document.Path)
	}
	return b.String()
}

func formatSymbolsHuman(pattern string, symbols []types.Symbol, quiet bool) string {
	if quiet {
		return ""
	}
	if len(symbols) == 0 {
		return fmt.Sprintf("no symbols matched %q", pattern)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d symbol(s) matched %q:\n", len(symbols), pattern)
	for _, s := range symbols {
		fmt.Fprintf(&b, "  %s %s (%s:%d-%d)\n", s.Kind, s.Name, s.FilePath, s.StartLine, s.EndLine)
	}
	return b.String()
}
