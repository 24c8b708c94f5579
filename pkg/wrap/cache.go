package wrap

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kotadb/kotadb/pkg/types"
)

// DefaultCacheSize is a conservative LRU bound for a read-mostly
// workload.
const DefaultCacheSize = 10_000

// CachedStorage is the innermost wrapper: a bounded LRU over id -> doc,
// invalidated on update/delete, with hit/miss counters reported by its
// Stats method.
type CachedStorage struct {
	next  Storage
	cache *lru.Cache[string, *types.Document]
	hits  atomic.Int64
	miss  atomic.Int64
}

// Cached wraps next with an LRU of the given size. size <= 0 uses
// DefaultCacheSize.
func Cached(next Storage, size int) (*CachedStorage, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *types.Document](size)
	if err != nil {
		return nil, err
	}
	return &CachedStorage{next: next, cache: c}, nil
}

func (c *CachedStorage) Insert(doc *types.Document) error {
	if err := c.next.Insert(doc); err != nil {
		return err
	}
	c.cache.Add(doc.ID.String(), doc.Clone())
	return nil
}

func (c *CachedStorage) Get(id types.ID) (*types.Document, bool) {
	if doc, ok := c.cache.Get(id.String()); ok {
		c.hits.Add(1)
		return doc.Clone(), true
	}
	c.miss.Add(1)
	doc, ok := c.next.Get(id)
	if ok {
		c.cache.Add(id.String(), doc.Clone())
	}
	return doc, ok
}

func (c *CachedStorage) Update(doc *types.Document) error {
	if err := c.next.Update(doc); err != nil {
		return err
	}
	c.cache.Remove(doc.ID.String())
	return nil
}

func (c *CachedStorage) Delete(id types.ID) (bool, error) {
	removed, err := c.next.Delete(id)
	if err != nil {
		return removed, err
	}
	c.cache.Remove(id.String())
	return removed, nil
}

func (c *CachedStorage) Flush() error {
	return c.next.Flush()
}

// Stats reports cumulative hit/miss counts.
func (c *CachedStorage) Stats() (hits, misses int64) {
	return c.hits.Load(), c.miss.Load()
}
