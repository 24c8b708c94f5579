// Package trigram implements the trigram index: substring and fuzzy
// full-text search over document content, built from inverted posting
// lists of unordered 3-byte windows.
package trigram

import (
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// Trigram is an unordered 3-byte window over normalized content.
type Trigram [3]byte

// normalize lowercases content and collapses tabs/newlines to spaces.
func normalize(content []byte) []byte {
	out := make([]byte, len(content))
	for i, b := range content {
		switch b {
		case '\t', '\n', '\r':
			b = ' '
		default:
			if b >= 'A' && b <= 'Z' {
				b = b - 'A' + 'a'
			}
		}
		out[i] = b
	}
	return out
}

// extract returns every length-3 window of normalized, sorted so that
// trigrams that are permutations of the same bytes compare equal; the
// index key is an unordered byte triple.
func extract(content []byte) []Trigram {
	n := normalize(content)
	if len(n) < 3 {
		return nil
	}
	out := make([]Trigram, 0, len(n)-2)
	for i := 0; i+3 <= len(n); i++ {
		out = append(out, sortTrigram(Trigram{n[i], n[i+1], n[i+2]}))
	}
	return out
}

func sortTrigram(t Trigram) Trigram {
	if t[0] > t[1] {
		t[0], t[1] = t[1], t[0]
	}
	if t[1] > t[2] {
		t[1], t[2] = t[2], t[1]
	}
	if t[0] > t[1] {
		t[0], t[1] = t[1], t[0]
	}
	return t
}

// shard returns the posting-list shard id for t, used to spread the
// inverted index across ShardCount buckets so concurrent queries don't
// serialize on a single map's lock.
func shard(t Trigram, shards int) int {
	return int(xxhash.Sum64(t[:]) % uint64(shards))
}

// DefaultShardCount spreads posting lists over enough buckets that
// concurrent queries rarely contend on the same lock.
const DefaultShardCount = 16

type posting struct {
	mu   sync.RWMutex
	docs map[Trigram]map[string]int // trigram -> docID -> occurrence count
}

// Index is the trigram inverted index.
type Index struct {
	shards  []*posting
	nshards int

	mu       sync.RWMutex
	lengths  map[string]int // docID -> normalized content length, for density scoring
	contents map[string][]byte
	dir      string // set once Open/Save has established a persistence root
}

// Flush persists the index to the directory it was opened from (or last
// saved to). It is a no-op if the index has never been attached to a
// directory, mirroring the primary index's Flush contract. Search here
// takes a string and Options, so this Index does not itself satisfy
// wrap.Index; SearchIDs is its Query-shaped form.
func (idx *Index) Flush() error {
	idx.mu.RLock()
	dir := idx.dir
	idx.mu.RUnlock()
	if dir == "" {
		return nil
	}
	return idx.Save(dir)
}

// SearchIDs adapts Search to the Query shape used by the query router
// and the Metered/Traced wrappers, discarding per-match
// scores. Limit 0 returns empty; a limit above 1000 fails validation.
func (idx *Index) SearchIDs(q types.Query) ([]types.ID, error) {
	if q.Limit == 0 {
		return nil, nil
	}
	if q.Limit > 1000 {
		return nil, kerrors.Newf(kerrors.Validation, "limit must be between 0 and 1000, got %d", q.Limit).WithField("limit")
	}
	matches := idx.Search(q.Text(), Options{Limit: int(q.Limit)})
	out := make([]types.ID, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out, nil
}

// New constructs an empty trigram index with the default shard count.
func New() *Index {
	return NewWithShards(DefaultShardCount)
}

// NewWithShards constructs an empty trigram index with an explicit shard
// count, mainly for tests.
func NewWithShards(shards int) *Index {
	if shards <= 0 {
		shards = DefaultShardCount
	}
	idx := &Index{
		shards:   make([]*posting, shards),
		nshards:  shards,
		lengths:  make(map[string]int),
		contents: make(map[string][]byte),
	}
	for i := range idx.shards {
		idx.shards[i] = &posting{docs: make(map[Trigram]map[string]int)}
	}
	return idx
}

// Index adds or replaces a document's trigrams. Content is kept (a copy)
// for positional-proximity scoring and substring fallback at query time.
func (idx *Index) Index(id types.ID, content []byte) {
	idx.Remove(id)

	docID := id.String()
	trigrams := extract(content)

	counts := make(map[Trigram]int, len(trigrams))
	for _, t := range trigrams {
		counts[t]++
	}

	for t, c := range counts {
		p := idx.shards[shard(t, idx.nshards)]
		p.mu.Lock()
		m, ok := p.docs[t]
		if !ok {
			m = make(map[string]int)
			p.docs[t] = m
		}
		m[docID] = c
		p.mu.Unlock()
	}

	idx.mu.Lock()
	idx.lengths[docID] = len(trigrams)
	stored := make([]byte, len(content))
	copy(stored, content)
	idx.contents[docID] = stored
	idx.mu.Unlock()
}

// Remove deletes a document's postings.
func (idx *Index) Remove(id types.ID) {
	docID := id.String()

	idx.mu.RLock()
	content, ok := idx.contents[docID]
	idx.mu.RUnlock()
	if ok {
		for _, t := range extract(content) {
			p := idx.shards[shard(t, idx.nshards)]
			p.mu.Lock()
			if m, ok := p.docs[t]; ok {
				delete(m, docID)
				if len(m) == 0 {
					delete(p.docs, t)
				}
			}
			p.mu.Unlock()
		}
	}

	idx.mu.Lock()
	delete(idx.lengths, docID)
	delete(idx.contents, docID)
	idx.mu.Unlock()
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.contents)
}

// Match is a single search result.
type Match struct {
	ID    types.ID
	Score float64
}

// Options tunes a Search call. Limit 0 means "return nothing", the same
// semantics every Query-shaped entry point carries.
type Options struct {
	Limit int
	Fuzzy bool
	// MaxMissing bounds how many query trigrams a fuzzy match may lack.
	// Ignored unless Fuzzy is set.
	MaxMissing int
}

// DefaultMaxMissing keeps the fuzzy relaxation small.
const DefaultMaxMissing = 2

// Search returns documents matching query, ranked by match density with
// positional proximity as a tiebreaker.
func (idx *Index) Search(query string, opts Options) []Match {
	if opts.Limit <= 0 {
		return nil
	}
	normalizedQuery := normalize([]byte(query))
	if len(normalizedQuery) < 3 {
		return idx.substringScan(string(normalizedQuery), opts.Limit)
	}

	qTrigrams := extract([]byte(query))
	counts := idx.coOccurrence(qTrigrams)

	distinct := make(map[Trigram]bool, len(qTrigrams))
	for _, t := range qTrigrams {
		distinct[t] = true
	}
	T := len(distinct) // coOccurrence counts each distinct trigram once
	maxMissing := opts.MaxMissing
	if maxMissing <= 0 {
		maxMissing = DefaultMaxMissing
	}

	var candidates []Match
	for docID, c := range counts {
		ok := meetsThreshold(c, T)
		if !ok && opts.Fuzzy && c >= T-maxMissing {
			ok = true
		}
		if !ok {
			continue
		}
		id, err := types.ParseID(docID)
		if err != nil {
			continue
		}
		if opts.Fuzzy && !fuzzyAccepts(idx.contentOf(docID), string(normalizedQuery), maxMissing) {
			continue
		}
		score := idx.score(docID, c, T, normalizedQuery)
		candidates = append(candidates, Match{ID: id, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID.String() < candidates[j].ID.String()
	})

	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}
	return candidates
}

// meetsThreshold implements the tiered precision thresholds: short
// queries need every trigram to co-occur, longer ones tolerate misses.
func meetsThreshold(c, T int) bool {
	switch {
	case T <= 0:
		return false
	case T <= 3:
		return c == T
	case T <= 6:
		threshold := maxFloat(float64(T)*0.8, float64(T-1))
		return float64(c) >= threshold
	default:
		threshold := maxFloat(3, float64(T)*0.6)
		return float64(c) >= threshold
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (idx *Index) coOccurrence(qTrigrams []Trigram) map[string]int {
	seen := make(map[Trigram]bool, len(qTrigrams))
	counts := make(map[string]int)
	for _, t := range qTrigrams {
		if seen[t] {
			continue
		}
		seen[t] = true
		p := idx.shards[shard(t, idx.nshards)]
		p.mu.RLock()
		for docID := range p.docs[t] {
			counts[docID]++
		}
		p.mu.RUnlock()
	}
	return counts
}

func (idx *Index) contentOf(docID string) []byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.contents[docID]
}

// score combines match density (c/T) with a positional-proximity bonus
// of 1.0 when the normalized query occurs verbatim in the normalized
// content, and 0 otherwise; distances between separate trigram
// occurrences are not measured. The bonus is a secondary sort key, not a
// separate score space, so ranking stays deterministic.
func (idx *Index) score(docID string, c, T int, normalizedQuery []byte) float64 {
	density := float64(c) / float64(maxInt(T, 1))

	content := idx.contentOf(docID)
	proximity := 0.0
	if len(content) > 0 && len(normalizedQuery) >= 3 {
		norm := normalize(content)
		if strings.Contains(string(norm), string(normalizedQuery)) {
			proximity = 1.0 // query appears verbatim: maximal proximity bonus
		}
	}
	return density*1000 + proximity
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// fuzzyAccepts checks the edit-distance relaxation: the query must fit
// within maxMissing edits of some substring of content.
func fuzzyAccepts(content []byte, normalizedQuery string, maxMissing int) bool {
	if len(content) == 0 {
		return false
	}
	norm := string(normalize(content))
	if strings.Contains(norm, normalizedQuery) {
		return true
	}
	window := len(normalizedQuery) + maxMissing
	for i := 0; i+len(normalizedQuery) <= len(norm)+maxMissing && i < len(norm); i++ {
		end := i + window
		if end > len(norm) {
			end = len(norm)
		}
		if editDistance(norm[i:end], normalizedQuery) <= maxMissing {
			return true
		}
	}
	return false
}

// editDistance is the classic Levenshtein distance, used only for the
// small fuzzy-relaxation window so its O(n*m) cost stays bounded.
func editDistance(a, b string) int {
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func minInt3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// substringScan is the fallback for queries shorter than 3 characters:
// a linear scan of every indexed document's normalized content.
func (idx *Index) substringScan(needle string, limit int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Match
	ids := make([]string, 0, len(idx.contents))
	for docID := range idx.contents {
		ids = append(ids, docID)
	}
	sort.Strings(ids)
	for _, docID := range ids {
		content := idx.contents[docID]
		if needle == "" || strings.Contains(string(normalize(content)), needle) {
			id, err := types.ParseID(docID)
			if err != nil {
				continue
			}
			out = append(out, Match{ID: id, Score: 1})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
