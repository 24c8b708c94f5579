// Package primary implements the primary index: a persistent B+tree
// of path -> id for exact/prefix/wildcard lookup, plus an id -> path
// reverse map for O(1) reverse lookup.
package primary

import (
	"sort"
	"sync"
	"time"

	"github.com/kotadb/kotadb/pkg/btree"
	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/types"
)

// Index is the primary path index.
type Index struct {
	mu      sync.RWMutex
	tree    *btree.Node[string, string] // path -> id string
	byID    map[string]string           // id string -> path string
	maxKeys int
	created time.Time
	updated time.Time
	dir     string // set once Open/Save has established a persistence root
}

// Flush persists the index to the directory it was opened from (or last
// saved to). It is a no-op if the index has never been attached to a
// directory.
func (idx *Index) Flush() error {
	idx.mu.RLock()
	dir := idx.dir
	idx.mu.RUnlock()
	if dir == "" {
		return nil
	}
	return idx.Save(dir)
}

// New constructs an empty, non-persisted Index. Call Open to load one
// from disk, or Save to create the on-disk layout for a fresh Index.
func New(maxKeys int) *Index {
	if maxKeys <= 0 {
		maxKeys = btree.DefaultMaxKeys
	}
	now := time.Now().UTC()
	return &Index{maxKeys: maxKeys, byID: make(map[string]string), created: now, updated: now}
}

// Insert adds the (id, path) pair, replacing any prior path for id.
func (idx *Index) Insert(id types.ID, path types.Path) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.byID[id.String()]; ok && old != path.String() {
		idx.tree = btree.Delete(idx.tree, old, idx.maxKeys)
	}
	if prevID, ok := btree.Search(idx.tree, path.String()); ok && prevID != id.String() {
		delete(idx.byID, prevID) // path re-bound to a new id; drop the stale reverse entry
	}
	idx.tree = btree.Insert(idx.tree, path.String(), id.String(), idx.maxKeys)
	idx.byID[id.String()] = path.String()
	idx.updated = time.Now().UTC()
	return nil
}

// Delete removes the entry for id. Deleting an absent id is a no-op.
func (idx *Index) Delete(id types.ID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	path, ok := idx.byID[id.String()]
	if !ok {
		return nil
	}
	idx.tree = btree.Delete(idx.tree, path, idx.maxKeys)
	delete(idx.byID, id.String())
	return nil
}

// Lookup returns the id stored for an exact path.
func (idx *Index) Lookup(path types.Path) (types.ID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := btree.Search(idx.tree, path.String())
	if !ok {
		return types.ID{}, false
	}
	id, err := types.ParseID(v)
	return id, err == nil
}

// PathOf is the O(1) reverse lookup, id -> path.
func (idx *Index) PathOf(id types.ID) (types.Path, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.byID[id.String()]
	if !ok {
		return types.Path{}, false
	}
	path, err := types.NewPath(p)
	return path, err == nil
}

// Search dispatches to exact, wildcard, or "everything" lookup depending
// on the query text, per the query router's rules. The primary
// index itself implements the matching; the router only decides *which*
// index to call.
func (idx *Index) Search(q types.Query) ([]types.ID, error) {
	// limit 0 is a real input meaning "return nothing", not a sentinel
	// for unset; anything above 1000 is rejected outright.
	if q.Limit == 0 {
		return nil, nil
	}
	if q.Limit > 1000 {
		return nil, kerrors.Newf(kerrors.Validation, "limit must be between 0 and 1000, got %d", q.Limit).WithField("limit")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	limit := int(q.Limit)

	var matches []string
	switch {
	case q.IsEmpty():
		matches = idx.allPathsLocked()
	case q.IsWildcard():
		for _, p := range idx.allPathsLocked() {
			if matchWildcard(q.Text(), p) {
				matches = append(matches, p)
			}
		}
	default:
		if _, ok := btree.Search(idx.tree, q.Text()); ok {
			matches = []string{q.Text()}
		}
	}

	sort.Strings(matches)
	if limit < len(matches) {
		matches = matches[:limit]
	}
	out := make([]types.ID, 0, len(matches))
	for _, p := range matches {
		if v, ok := btree.Search(idx.tree, p); ok {
			id, err := types.ParseID(v)
			if err == nil {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (idx *Index) allPathsLocked() []string {
	pairs := btree.All(idx.tree)
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Key
	}
	return out
}

// Count returns the number of indexed paths.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// Validate runs the B+ tree structural invariants, used by the
// ValidationService.
func (idx *Index) Validate() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if !btree.IsValid(idx.tree, idx.maxKeys) {
		return kerrors.New(kerrors.Internal, "primary index tree failed structural validation")
	}
	if !btree.AllLeavesSameDepth(idx.tree) {
		return kerrors.New(kerrors.Internal, "primary index leaves are not at equal depth")
	}
	return nil
}
