package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

type fakePrimary struct {
	calls int
	ids   []types.ID
}

func (f *fakePrimary) Search(q types.Query) ([]types.ID, error) {
	f.calls++
	return f.ids, nil
}

type fakeTrigram struct {
	calls int
	ids   []types.ID
}

func (f *fakeTrigram) SearchIDs(q types.Query) ([]types.ID, error) {
	f.calls++
	return f.ids, nil
}

type fakeDocs struct {
	tags map[string][]string
}

func (f *fakeDocs) Get(id types.ID) (*types.Document, bool) {
	raw, ok := f.tags[id.String()]
	if !ok {
		return nil, false
	}
	ts, _ := types.NewTagSet(raw...)
	return &types.Document{ID: id, Tags: ts}, true
}

func TestRouteForRules(t *testing.T) {
	require.Equal(t, RouteEverything, RouteFor(types.Query{}))
	require.Equal(t, RouteEverything, RouteFor(types.Query{SearchTerms: []string{"*"}}))
	require.Equal(t, RouteWildcard, RouteFor(types.Query{SearchTerms: []string{"foo*bar"}}))
	require.Equal(t, RouteTrigram, RouteFor(types.Query{SearchTerms: []string{"hello"}}))
}

func TestSearchDispatchesToPrimaryForEmptyAndWildcard(t *testing.T) {
	id := types.NewID()
	primary := &fakePrimary{ids: []types.ID{id}}
	trigram := &fakeTrigram{}
	r := New(primary, trigram, nil)

	_, err := r.Search(types.Query{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 0, trigram.calls)

	_, err = r.Search(types.Query{SearchTerms: []string{"*.md"}, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, primary.calls)
	require.Equal(t, 0, trigram.calls)
}

func TestSearchDispatchesToTrigramOtherwise(t *testing.T) {
	primary := &fakePrimary{}
	trigram := &fakeTrigram{ids: []types.ID{types.NewID()}}
	r := New(primary, trigram, nil)

	_, err := r.Search(types.Query{SearchTerms: []string{"hello"}, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 0, primary.calls)
	require.Equal(t, 1, trigram.calls)
}

func TestSearchAppliesTagFilter(t *testing.T) {
	keep := types.NewID()
	drop := types.NewID()
	trigram := &fakeTrigram{ids: []types.ID{keep, drop}}
	docs := &fakeDocs{tags: map[string][]string{
		keep.String(): {"rust", "storage"},
		drop.String(): {"rust"},
	}}
	r := New(&fakePrimary{}, trigram, docs)

	ids, err := r.Search(types.Query{SearchTerms: []string{"hello"}, Tags: []string{"storage"}, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []types.ID{keep}, ids)
}

func TestSearchZeroLimitReturnsEmptyWithoutDispatch(t *testing.T) {
	primary := &fakePrimary{ids: []types.ID{types.NewID()}}
	trigram := &fakeTrigram{ids: []types.ID{types.NewID()}}
	r := New(primary, trigram, nil)

	ids, err := r.Search(types.Query{SearchTerms: []string{"hello"}})
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Equal(t, 0, primary.calls)
	require.Equal(t, 0, trigram.calls)
}

func TestSearchRejectsOversizedLimit(t *testing.T) {
	r := New(&fakePrimary{}, &fakeTrigram{}, nil)
	_, err := r.Search(types.Query{SearchTerms: []string{"hello"}, Limit: 1001})
	require.Error(t, err)
	require.Equal(t, kerrors.Validation, kerrors.KindOf(err))
}
