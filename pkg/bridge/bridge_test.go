package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/pkg/types"
)

type fakeSymbolSource struct{ symbols []types.Symbol }

func (f fakeSymbolSource) All() ([]types.Symbol, error) { return f.symbols, nil }

type fakeParser struct {
	byPath map[string][]types.Reference
}

func (f fakeParser) ParseReferences(path string, _ []byte) ([]types.Reference, error) {
	return f.byPath[path], nil
}

func TestBuildResolvesCallEdge(t *testing.T) {
	insertID := types.NewID()
	getID := types.NewID()

	symbols := []types.Symbol{
		{ID: insertID, Name: "insert", Kind: types.SymbolFunction, FilePath: "store.go", StartLine: 1, EndLine: 20},
		{ID: getID, Name: "get", Kind: types.SymbolFunction, FilePath: "store.go", StartLine: 21, EndLine: 30},
	}
	parser := fakeParser{byPath: map[string][]types.Reference{
		"store.go": {
			{Name: "get", Kind: types.RefFunctionCall, Location: types.Location{Line: 5, Column: 2}},
		},
	}}

	b := New(DefaultOptions())
	graph, err := b.Build(context.Background(), fakeSymbolSource{symbols: symbols}, parser, []FileSource{{Path: "store.go", Content: []byte("package x")}})
	require.NoError(t, err)
	require.Len(t, graph.Edges, 1)
	require.True(t, graph.Edges[0].Source.Equal(insertID))
	require.True(t, graph.Edges[0].Target.Equal(getID))
	require.Equal(t, types.RelationCalls, graph.Edges[0].Kind)
	require.Equal(t, 1, graph.Stats.Degrees[insertID].Out)
	require.Equal(t, 1, graph.Stats.Degrees[getID].In)
}

func TestBuildSkipsImportsByDefault(t *testing.T) {
	callerID := types.NewID()
	importedID := types.NewID()
	symbols := []types.Symbol{
		{ID: callerID, Name: "main", Kind: types.SymbolFunction, FilePath: "main.go", StartLine: 1, EndLine: 10},
		{ID: importedID, Name: "fmt", Kind: types.SymbolModule, FilePath: "fmt.go", StartLine: 1, EndLine: 1},
	}
	parser := fakeParser{byPath: map[string][]types.Reference{
		"main.go": {{Name: "fmt", Kind: types.RefImport, Location: types.Location{Line: 2}}},
	}}

	b := New(DefaultOptions())
	graph, err := b.Build(context.Background(), fakeSymbolSource{symbols: symbols}, parser, []FileSource{{Path: "main.go"}})
	require.NoError(t, err)
	require.Empty(t, graph.Edges)

	b2 := New(Options{CountImports: true})
	graph2, err := b2.Build(context.Background(), fakeSymbolSource{symbols: symbols}, parser, []FileSource{{Path: "main.go"}})
	require.NoError(t, err)
	require.Len(t, graph2.Edges, 1)
}

func TestBuildSkipsSelfReference(t *testing.T) {
	id := types.NewID()
	symbols := []types.Symbol{
		{ID: id, Name: "recurse", Kind: types.SymbolFunction, FilePath: "r.go", StartLine: 1, EndLine: 10},
	}
	parser := fakeParser{byPath: map[string][]types.Reference{
		"r.go": {{Name: "recurse", Kind: types.RefFunctionCall, Location: types.Location{Line: 5}}},
	}}

	b := New(DefaultOptions())
	graph, err := b.Build(context.Background(), fakeSymbolSource{symbols: symbols}, parser, []FileSource{{Path: "r.go"}})
	require.NoError(t, err)
	require.Empty(t, graph.Edges)
}

func TestBuildSkipsOversizedFile(t *testing.T) {
	b := New(Options{MaxFileSize: 4})
	graph, err := b.Build(context.Background(), fakeSymbolSource{}, fakeParser{}, []FileSource{{Path: "big.go", Content: []byte("toolong")}})
	require.NoError(t, err)
	require.Equal(t, 0, graph.Stats.FilesProcessed)
}
