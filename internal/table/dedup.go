// Package table implements the router's bookkeeping tables.
package table

import (
	"container/list"
	"sync"

	"firestige.xyz/floodstack/internal/core"
)

// DefaultDedupCapacity is the number of packet ids remembered.
const DefaultDedupCapacity = 100

// DedupCache is a bounded set of recently seen packet ids. Eviction is
// strictly first-in first-out: membership checks do not refresh an entry.
type DedupCache struct {
	mu       sync.Mutex
	capacity int
	order    list.List // of core.PacketID, oldest at front
	index    map[core.PacketID]*list.Element
}

// NewDedupCache creates a cache holding at most capacity ids.
func NewDedupCache(capacity int) *DedupCache {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupCache{
		capacity: capacity,
		index:    make(map[core.PacketID]*list.Element, capacity),
	}
}

// Add inserts id, evicting the oldest entry when full. Adding an id that is
// already present is a no-op.
func (c *DedupCache) Add(id core.PacketID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[id]; ok {
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(core.PacketID))
	}
	c.index[id] = c.order.PushBack(id)
}

// Contains reports whether id has been seen.
func (c *DedupCache) Contains(id core.PacketID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// Len returns the number of remembered ids.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear forgets every id.
func (c *DedupCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[core.PacketID]*list.Element, c.capacity)
}
