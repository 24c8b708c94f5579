package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/pkg/types"
)

func mustNode(name string) Node {
	return Node{
		ID:            types.NewID(),
		NodeType:      "function",
		QualifiedName: name,
		FilePath:      "src/storage.go",
		Location:      Location{StartLine: 1, EndLine: 10},
		Metadata:      map[string]string{"lang": "go"},
		UpdatedAt:     time.Now().UTC(),
	}
}

// TestStoreRoundTrip guards the store-sync-reopen round trip: store two
// nodes, one edge, sync, reopen, and verify the edge is returned by both
// adjacency directions with endpoints intact.
func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultConfig())
	require.NoError(t, err)

	n1 := mustNode("kotadb::FileStorage::insert")
	n2 := mustNode("kotadb::FileStorage::get")
	require.NoError(t, s.StoreNode(n1))
	require.NoError(t, s.StoreNode(n2))

	edge := Edge{Source: n1.ID, Target: n2.ID, Kind: types.RelationCalls, Location: types.Location{Line: 42, Column: 3}}
	require.NoError(t, s.StoreEdge(edge))
	require.NoError(t, s.Sync())

	reopened, err := Open(dir, DefaultConfig())
	require.NoError(t, err)

	gotN1, ok := reopened.GetNode(n1.ID)
	require.True(t, ok)
	require.Equal(t, n1.QualifiedName, gotN1.QualifiedName)

	out := reopened.GetEdges(n1.ID, Outgoing)
	require.Len(t, out, 1)
	require.True(t, out[0].NeighborID.Equal(n2.ID))
	require.Equal(t, types.RelationCalls, out[0].Edge.Kind)

	in := reopened.GetEdges(n2.ID, Incoming)
	require.Len(t, in, 1)
	require.True(t, in[0].NeighborID.Equal(n1.ID))

	require.Empty(t, reopened.QuarantinedPages())
}

func TestStoreEdgeRejectsSelfEdge(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultConfig())
	require.NoError(t, err)

	n := mustNode("kotadb::FileStorage::flush")
	require.NoError(t, s.StoreNode(n))

	err = s.StoreEdge(Edge{Source: n.ID, Target: n.ID, Kind: types.RelationCalls})
	require.Error(t, err)
}

func TestStoreEdgeRequiresExistingEndpoints(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultConfig())
	require.NoError(t, err)

	err = s.StoreEdge(Edge{Source: types.NewID(), Target: types.NewID(), Kind: types.RelationCalls})
	require.Error(t, err)
}

func TestEntryCodecRoundTrip(t *testing.T) {
	n := mustNode("kotadb::Query::Route")
	decoded, err := decodeNode(encodeNode(n))
	require.NoError(t, err)
	require.Equal(t, n.QualifiedName, decoded.QualifiedName)
	require.Equal(t, n.Metadata, decoded.Metadata)

	e := Edge{Source: types.NewID(), Target: types.NewID(), Kind: types.RelationImplements, Location: types.Location{Line: 7, Column: 2, Context: "impl Foo for Bar"}}
	decodedEdge, err := decodeEdge(encodeEdge(e))
	require.NoError(t, err)
	require.Equal(t, e.Location.Context, decodedEdge.Location.Context)
	require.True(t, e.Source.Equal(decodedEdge.Source))
}
