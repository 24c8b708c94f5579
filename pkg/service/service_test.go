package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/pkg/graph"
	"github.com/kotadb/kotadb/pkg/index/primary"
	"github.com/kotadb/kotadb/pkg/index/trigram"
	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/storage"
	"github.com/kotadb/kotadb/pkg/symboldb"
	"github.com/kotadb/kotadb/pkg/types"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "storage"), storage.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &Database{Store: store, Primary: primary.New(0), Trigram: trigram.New()}
}

func insertDoc(t *testing.T, db *Database, path, content string, tags ...string) types.ID {
	t.Helper()
	p, err := types.NewPath(path)
	require.NoError(t, err)
	title, err := types.NewTitle(filepath.Base(path))
	require.NoError(t, err)
	ts, err := types.NewTagSet(tags...)
	require.NoError(t, err)
	now := time.Now().UTC()
	doc := &types.Document{ID: types.NewID(), Path: p, Title: title, Content: []byte(content), Tags: ts, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Store.Insert(doc))
	require.NoError(t, db.Primary.Insert(doc.ID, doc.Path))
	db.Trigram.Index(doc.ID, doc.Content)
	return doc.ID
}

func TestSearchHydratesDocuments(t *testing.T) {
	db := newTestDatabase(t)
	id := insertDoc(t, db, "src/storage.go", "func insertDocument() { appendToWal() }")
	insertDoc(t, db, "src/other.go", "completely unrelated contents")

	svc := NewSearchService(db)
	result, err := svc.Search(SearchOptions{Query: "insertDocument", Limit: 100, Context: ContextMinimal})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.True(t, result.Hits[0].Document.ID.Equal(id))
	assert.NotEmpty(t, result.Hits[0].Snippet)
	assert.NotEmpty(t, result.Human)
}

func TestSearchEverythingRoute(t *testing.T) {
	db := newTestDatabase(t)
	insertDoc(t, db, "a.md", "alpha")
	insertDoc(t, db, "b.md", "beta")

	svc := NewSearchService(db)
	result, err := svc.Search(SearchOptions{Query: "*", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, result.Hits, 2)
}

func TestSearchFiltersByTag(t *testing.T) {
	db := newTestDatabase(t)
	keep := insertDoc(t, db, "a.md", "shared searchable body", "storage")
	insertDoc(t, db, "b.md", "shared searchable body", "other")

	svc := NewSearchService(db)
	result, err := svc.Search(SearchOptions{Query: "searchable body", Tags: []string{"storage"}, Limit: 100})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.True(t, result.Hits[0].Document.ID.Equal(keep))
}

func TestSearchZeroLimitReturnsEmpty(t *testing.T) {
	db := newTestDatabase(t)
	insertDoc(t, db, "a.md", "searchable body")

	svc := NewSearchService(db)
	result, err := svc.Search(SearchOptions{Query: "searchable body"})
	require.NoError(t, err)
	assert.Empty(t, result.Hits)

	db.SymbolReader = buildSymbolDB(t,
		types.Symbol{ID: types.NewID(), Name: "Lookup", Kind: types.SymbolFunction, FilePath: "index.go", StartLine: 1, EndLine: 3},
	)
	symResult, err := svc.SearchSymbols(SymbolSearchOptions{Pattern: "*"})
	require.NoError(t, err)
	assert.Empty(t, symResult.Symbols)
}

func TestSearchRejectsOversizedLimit(t *testing.T) {
	db := newTestDatabase(t)
	svc := NewSearchService(db)
	_, err := svc.Search(SearchOptions{Query: "x", Limit: 1001})
	require.Error(t, err)
	assert.Equal(t, kerrors.Validation, kerrors.KindOf(err))
}

func buildSymbolDB(t *testing.T, symbols ...types.Symbol) *symboldb.Reader {
	t.Helper()
	b := symboldb.NewBuilder()
	for _, s := range symbols {
		b.Add(s)
	}
	path := filepath.Join(t.TempDir(), "symbols.kota")
	require.NoError(t, b.WriteFile(path))
	r, err := symboldb.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSearchSymbolsByWildcardAndKind(t *testing.T) {
	db := newTestDatabase(t)
	db.SymbolReader = buildSymbolDB(t,
		types.Symbol{ID: types.NewID(), Name: "InsertDocument", Kind: types.SymbolFunction, FilePath: "store.go", StartLine: 1, EndLine: 10},
		types.Symbol{ID: types.NewID(), Name: "InsertEdge", Kind: types.SymbolMethod, FilePath: "graph.go", StartLine: 1, EndLine: 5},
		types.Symbol{ID: types.NewID(), Name: "Lookup", Kind: types.SymbolFunction, FilePath: "index.go", StartLine: 1, EndLine: 3},
	)

	svc := NewSearchService(db)
	result, err := svc.SearchSymbols(SymbolSearchOptions{Pattern: "Insert*", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, result.Symbols, 2)

	result, err = svc.SearchSymbols(SymbolSearchOptions{Pattern: "Insert*", SymbolType: "method", Limit: 100})
	require.NoError(t, err)
	require.Len(t, result.Symbols, 1)
	assert.Equal(t, "InsertEdge", result.Symbols[0].Name)
}

func TestSearchSymbolsWithoutSymbolDB(t *testing.T) {
	db := newTestDatabase(t)
	svc := NewSearchService(db)
	_, err := svc.SearchSymbols(SymbolSearchOptions{Pattern: "*", Limit: 100})
	require.Error(t, err)
	assert.Equal(t, kerrors.NotFound, kerrors.KindOf(err))
}

func TestStatsDefaultsToAllSections(t *testing.T) {
	db := newTestDatabase(t)
	insertDoc(t, db, "a.md", "alpha")

	svc := NewStatsService(db)
	result, err := svc.Stats(StatsOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Basic)
	require.NotNil(t, result.Symbols)
	require.NotNil(t, result.Relationships)
	assert.Equal(t, 1, result.Basic.Documents)
	assert.False(t, result.Symbols.Present)
	assert.False(t, result.Relationships.Present)
}

func TestValidateReportsCountMismatch(t *testing.T) {
	db := newTestDatabase(t)
	insertDoc(t, db, "a.md", "alpha")
	// A document inserted into the store but never indexed is exactly the
	// inconsistency check_consistency exists to catch.
	p, err := types.NewPath("unindexed.md")
	require.NoError(t, err)
	title, err := types.NewTitle("T")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, db.Store.Insert(&types.Document{ID: types.NewID(), Path: p, Title: title, Content: []byte("x"), CreatedAt: now, UpdatedAt: now}))

	svc := NewValidationService(db)
	result, err := svc.Validate(ValidationOptions{CheckConsistency: true})
	require.NoError(t, err)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "warning", result.Issues[0].Severity)
	assert.True(t, result.Healthy, "warnings alone do not mark the database degraded")
}

func newAnalysisFixture(t *testing.T) (*Database, types.ID, types.ID, types.ID) {
	t.Helper()
	db := newTestDatabase(t)

	a := types.Symbol{ID: types.NewID(), Name: "a", Kind: types.SymbolFunction, FilePath: "f.go", StartLine: 1, EndLine: 5}
	b := types.Symbol{ID: types.NewID(), Name: "b", Kind: types.SymbolFunction, FilePath: "f.go", StartLine: 6, EndLine: 10}
	c := types.Symbol{ID: types.NewID(), Name: "c", Kind: types.SymbolFunction, FilePath: "f.go", StartLine: 11, EndLine: 15}
	db.SymbolReader = buildSymbolDB(t, a, b, c)

	g, err := graph.Open(filepath.Join(t.TempDir(), "graph"), graph.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	for _, s := range []types.Symbol{a, b, c} {
		require.NoError(t, g.StoreNode(graph.Node{ID: s.ID, NodeType: "function", QualifiedName: s.Name, FilePath: s.FilePath, UpdatedAt: time.Now().UTC()}))
	}
	// b calls a, c calls b, and a calls c: a cycle, which the traversal
	// must terminate on.
	require.NoError(t, g.StoreEdge(graph.Edge{Source: b.ID, Target: a.ID, Kind: types.RelationCalls}))
	require.NoError(t, g.StoreEdge(graph.Edge{Source: c.ID, Target: b.ID, Kind: types.RelationCalls}))
	require.NoError(t, g.StoreEdge(graph.Edge{Source: a.ID, Target: c.ID, Kind: types.RelationCalls}))
	db.GraphStore = g
	return db, a.ID, b.ID, c.ID
}

func TestFindCallersReturnsIncomingEdges(t *testing.T) {
	db, _, bID, _ := newAnalysisFixture(t)
	svc := NewAnalysisService(db)

	result, err := svc.FindCallers(AnalysisOptions{Target: "a"})
	require.NoError(t, err)
	require.Len(t, result.Callers, 1)
	assert.True(t, result.Callers[0].Symbol.Equal(bID))
	assert.Equal(t, types.RelationCalls, result.Callers[0].Edge.Kind)
}

func TestAnalyzeImpactTerminatesOnCycle(t *testing.T) {
	db, aID, bID, cID := newAnalysisFixture(t)
	svc := NewAnalysisService(db)

	result, err := svc.AnalyzeImpact(AnalysisOptions{Target: "a"})
	require.NoError(t, err)
	// Everything transitively depends on a; the cycle back to a itself is
	// suppressed by the visited set.
	got := map[string]bool{}
	for _, n := range result.Affected {
		got[n.ID.String()] = true
	}
	assert.True(t, got[bID.String()])
	assert.True(t, got[cID.String()])
	assert.False(t, got[aID.String()])
}

func TestAnalyzeImpactUnknownTarget(t *testing.T) {
	db, _, _, _ := newAnalysisFixture(t)
	svc := NewAnalysisService(db)
	_, err := svc.AnalyzeImpact(AnalysisOptions{Target: "does-not-exist"})
	require.Error(t, err)
	assert.Equal(t, kerrors.NotFound, kerrors.KindOf(err))
}

func TestBenchmarkReportsPercentiles(t *testing.T) {
	db := newTestDatabase(t)
	insertDoc(t, db, "a.md", "benchmark corpus body")

	svc := NewBenchmarkService(db)
	result, err := svc.Run(BenchmarkOptions{Query: "benchmark corpus", Iterations: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, result.Iterations)
	assert.GreaterOrEqual(t, result.P99, result.P50)
}
