package trigram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

func TestExtractNormalizesCase(t *testing.T) {
	a := extract([]byte("ABC"))
	b := extract([]byte("abc"))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0], b[0])
}

func TestExtractCollapsesWhitespace(t *testing.T) {
	a := extract([]byte("a\tb\nc"))
	b := extract([]byte("a b c"))
	assert.Equal(t, a, b)
}

func TestExtractShortContentYieldsNoTrigrams(t *testing.T) {
	assert.Nil(t, extract([]byte("ab")))
	assert.Nil(t, extract(nil))
}

func TestMeetsThreshold(t *testing.T) {
	cases := []struct {
		c, T int
		want bool
	}{
		{3, 3, true},
		{2, 3, false},
		{4, 5, true},  // max(4, 4) = 4
		{3, 5, false}, // needs >= 4
		{5, 8, true},  // max(4.8,3)=4.8 -> need >=5? let's check tier3
		{6, 10, true}, // max(3,6)=6
		{5, 10, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, meetsThreshold(c.c, c.T), "c=%d T=%d", c.c, c.T)
	}
}

func TestIndexExactSubstringReturnsExactDocuments(t *testing.T) {
	idx := New()
	docA := types.NewID()
	docB := types.NewID()
	docC := types.NewID()

	idx.Index(docA, []byte("the quick brown fox jumps"))
	idx.Index(docB, []byte("the quick brown fox jumps over the lazy dog"))
	idx.Index(docC, []byte("completely unrelated content here"))

	matches := idx.Search("brown fox", Options{Limit: 10})
	ids := map[string]bool{}
	for _, m := range matches {
		ids[m.ID.String()] = true
	}
	assert.True(t, ids[docA.String()])
	assert.True(t, ids[docB.String()])
	assert.False(t, ids[docC.String()])
}

func TestSearchShortQueryFallsBackToSubstringScan(t *testing.T) {
	idx := New()
	doc := types.NewID()
	idx.Index(doc, []byte("hello world"))

	matches := idx.Search("he", Options{Limit: 10})
	require.Len(t, matches, 1)
	assert.Equal(t, doc.String(), matches[0].ID.String())

	matches = idx.Search("zz", Options{Limit: 10})
	assert.Empty(t, matches)
}

func TestRemoveDropsDocumentFromPostings(t *testing.T) {
	idx := New()
	doc := types.NewID()
	idx.Index(doc, []byte("needle in a haystack"))
	require.Len(t, idx.Search("needle", Options{Limit: 10}), 1)

	idx.Remove(doc)
	assert.Empty(t, idx.Search("needle", Options{Limit: 10}))
	assert.Equal(t, 0, idx.Count())
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := New()
	for i := 0; i < 5; i++ {
		idx.Index(types.NewID(), []byte("shared trigram content block"))
	}
	matches := idx.Search("shared trigram", Options{Limit: 2})
	assert.Len(t, matches, 2)
}

func TestFuzzySearchToleratesSmallEdits(t *testing.T) {
	idx := New()
	doc := types.NewID()
	idx.Index(doc, []byte("function calculateTotalPrice implementation"))

	exact := idx.Search("calculateTotalPrice", Options{Limit: 10})
	require.Len(t, exact, 1)

	fuzzy := idx.Search("calculateTotlPrice", Options{Limit: 10, Fuzzy: true, MaxMissing: 2})
	found := false
	for _, m := range fuzzy {
		if m.ID.Equal(doc) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("abc", "abc"))
	assert.Equal(t, 1, editDistance("abc", "abd"))
	assert.Equal(t, 1, editDistance("abc", "ab"))
	assert.Equal(t, 3, editDistance("", "abc"))
}

func TestSaveOpenRoundTripRebuildsPostings(t *testing.T) {
	dir := t.TempDir()
	idx := New()
	doc := types.NewID()
	idx.Index(doc, []byte("persisted trigram content"))
	require.NoError(t, idx.Save(dir))

	reopened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
	matches := reopened.Search("persisted trigram", Options{Limit: 10})
	require.Len(t, matches, 1)
	assert.Equal(t, doc.String(), matches[0].ID.String())
}

func TestSearchZeroLimitReturnsEmpty(t *testing.T) {
	idx := New()
	doc := types.NewID()
	idx.Index(doc, []byte("some indexed content here"))

	assert.Empty(t, idx.Search("indexed content", Options{}))

	ids, err := idx.SearchIDs(types.Query{SearchTerms: []string{"indexed content"}})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSearchIDsRejectsOversizedLimit(t *testing.T) {
	idx := New()
	_, err := idx.SearchIDs(types.Query{SearchTerms: []string{"anything"}, Limit: 1001})
	require.Error(t, err)
	assert.Equal(t, kerrors.Validation, kerrors.KindOf(err))
}
