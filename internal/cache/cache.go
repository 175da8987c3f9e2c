// Package cache implements the client-side cache mirrors kept by the worker:
// the pixmap cache, the palette cache and the cursor cache.
//
// The worker never stores cached content itself. It only mirrors which ids
// the client holds so it can send a reference instead of the pixels, and
// tells the client which ids to drop when room is needed.
package cache

import (
	"sync"
	"sync/atomic"
)

// Cache is a size-bounded LRU set of content ids.
//
// A pixmap cache may be shared by the display channels of one client, so
// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	name     string
	capacity int64
	used     int64
	index    map[uint64]*lruNode
	lru      lruList

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats is a point-in-time snapshot of a cache.
type Stats struct {
	Name     string
	Entries  int
	Used     int64
	Capacity int64
	Hits     int64
	Misses   int64
}

// New returns an empty cache holding at most capacity units. Pixmap caches
// count bytes, palette and cursor caches count entries (size 1 each).
func New(name string, capacity int64) *Cache {
	return &Cache{
		name:     name,
		capacity: capacity,
		index:    make(map[uint64]*lruNode),
	}
}

// Name returns the cache name used in invalidation items.
func (c *Cache) Name() string {
	return c.name
}

// TryHit reports whether id is cached and marks it most recently used.
func (c *Cache) TryHit(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.index[id]
	if !ok {
		c.misses.Add(1)
		return false
	}
	c.lru.moveToFront(n)
	c.hits.Add(1)
	return true
}

// Contains reports whether id is cached without touching recency.
func (c *Cache) Contains(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// Insert adds id with the given size, evicting least recently used ids
// until it fits. It returns the evicted ids, which the client must drop
// before it stores id. ok is false when the entry can never fit or id is
// already cached; nothing is evicted then.
func (c *Cache) Insert(id uint64, size int64) (evicted []uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if size <= 0 {
		size = 1
	}
	if size > c.capacity {
		return nil, false
	}
	if _, exists := c.index[id]; exists {
		return nil, false
	}
	for c.used+size > c.capacity {
		evicted = append(evicted, c.dropOldest())
	}
	n := &lruNode{id: id, size: size}
	c.index[id] = n
	c.lru.pushFront(n)
	c.used += size
	return evicted, true
}

// EvictSome drops least recently used ids until at least budget units are
// free or the cache is empty, returning the dropped ids.
func (c *Cache) EvictSome(budget int64) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []uint64
	for c.capacity-c.used < budget && c.lru.len > 0 {
		out = append(out, c.dropOldest())
	}
	return out
}

// Remove drops id. It reports whether the id was cached.
func (c *Cache) Remove(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.index[id]
	if !ok {
		return false
	}
	c.lru.unlink(n)
	delete(c.index, id)
	c.used -= n.size
	return true
}

// Reset empties the cache and optionally changes its capacity (a
// non-positive capacity keeps the current one).
func (c *Cache) Reset(capacity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if capacity > 0 {
		c.capacity = capacity
	}
	c.index = make(map[uint64]*lruNode)
	c.lru = lruList{}
	c.used = 0
}

// Len returns the number of cached ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.len
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Name:     c.name,
		Entries:  c.lru.len,
		Used:     c.used,
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

func (c *Cache) dropOldest() uint64 {
	n := c.lru.oldest()
	c.lru.unlink(n)
	delete(c.index, n.id)
	c.used -= n.size
	return n.id
}
