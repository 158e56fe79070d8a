package chunkstore

import "container/list"

// ChunkCache is an LRU over ChunkCoord with a maximum size. It maintains an
// insertion-ordered list and a key-to-element map so touch is O(1); no
// complete repo in the retrieval pack vendors a ready-made generic LRU (see
// DESIGN.md), so this wraps the standard library's container/list the way
// the corpus's own hand-rolled insertion-order structures would if they had
// reached for it.
type ChunkCache struct {
	max   int
	order *list.List // front = most recently used
	index map[ChunkCoord]*list.Element
}

// NewChunkCache returns a cache that holds at most max entries.
func NewChunkCache(max int) *ChunkCache {
	return &ChunkCache{
		max:   max,
		order: list.New(),
		index: make(map[ChunkCoord]*list.Element),
	}
}

// SetMax changes the capacity. It does not evict; call Evict afterward if
// the new max is smaller than the current size.
func (c *ChunkCache) SetMax(max int) { c.max = max }

// Size returns the number of entries currently tracked.
func (c *ChunkCache) Size() int { return c.order.Len() }

// Max returns the configured capacity.
func (c *ChunkCache) Max() int { return c.max }

// Touch promotes coord to most-recently-used, inserting it if absent.
func (c *ChunkCache) Touch(coord ChunkCoord) {
	if el, ok := c.index[coord]; ok {
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(coord)
	c.index[coord] = el
}

// Erase drops coord from the cache if present.
func (c *ChunkCache) Erase(coord ChunkCoord) {
	if el, ok := c.index[coord]; ok {
		c.order.Remove(el)
		delete(c.index, coord)
	}
}

// Contains reports whether coord is currently tracked.
func (c *ChunkCache) Contains(coord ChunkCoord) bool {
	_, ok := c.index[coord]
	return ok
}

// Evict walks from the least-recently-used end, removing entries until
// Size() <= Max(), skipping any coord present in protected (re-promoting it
// to the front instead, so a protected key never blocks progress toward
// other evictions on a later call). Each entry is visited at most once per
// call, so when protected entries alone exceed Max(), Size() stays above
// Max() afterwards. Returns the evicted coords in eviction order.
func (c *ChunkCache) Evict(protected map[ChunkCoord]struct{}) []ChunkCoord {
	var evicted []ChunkCoord
	el := c.order.Back()
	remaining := c.order.Len()
	for c.order.Len() > c.max && el != nil && remaining > 0 {
		remaining--
		prev := el.Prev()
		coord := el.Value.(ChunkCoord)
		if _, isProtected := protected[coord]; isProtected {
			c.order.MoveToFront(el)
			el = prev
			continue
		}
		c.order.Remove(el)
		delete(c.index, coord)
		evicted = append(evicted, coord)
		el = prev
	}
	return evicted
}
