package table

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/floodstack/internal/core"
)

// DefaultNeighborTTL is how long a directly heard node stays a neighbor.
const DefaultNeighborTTL = 5 * time.Minute

// NeighborTable records nodes heard directly (one hop) and when.
//
// Entries never expire on lookup. Sweep is the only operation that evicts and
// must be driven by an external periodic scheduler.
type NeighborTable struct {
	ttl     time.Duration
	entries *cache.Cache // address (decimal) -> time.Time last seen
}

// Neighbor is a snapshot of one table entry.
type Neighbor struct {
	Address  core.Address
	LastSeen time.Time
}

// NewNeighborTable creates a table whose entries go stale after ttl.
func NewNeighborTable(ttl time.Duration) *NeighborTable {
	if ttl <= 0 {
		ttl = DefaultNeighborTTL
	}
	return &NeighborTable{
		ttl: ttl,
		// No default expiration and no janitor: staleness is decided by Sweep only.
		entries: cache.New(cache.NoExpiration, 0),
	}
}

// Update records addr as heard at now, inserting or refreshing it.
func (t *NeighborTable) Update(addr core.Address, now time.Time) {
	t.entries.Set(neighborKey(addr), now, cache.NoExpiration)
}

// Contains reports whether addr is in the table, regardless of age.
func (t *NeighborTable) Contains(addr core.Address) bool {
	_, ok := t.entries.Get(neighborKey(addr))
	return ok
}

// LastSeen returns when addr was last heard.
func (t *NeighborTable) LastSeen(addr core.Address) (time.Time, bool) {
	v, ok := t.entries.Get(neighborKey(addr))
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// Sweep evicts entries not heard within the TTL as of now and returns how
// many were removed.
func (t *NeighborTable) Sweep(now time.Time) int {
	removed := 0
	for key, item := range t.entries.Items() {
		seen, ok := item.Object.(time.Time)
		if !ok || now.Sub(seen) >= t.ttl {
			t.entries.Delete(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of neighbors.
func (t *NeighborTable) Len() int {
	return t.entries.ItemCount()
}

// Snapshot returns every neighbor. Order is unspecified.
func (t *NeighborTable) Snapshot() []Neighbor {
	items := t.entries.Items()
	out := make([]Neighbor, 0, len(items))
	for key, item := range items {
		v, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			continue
		}
		seen, _ := item.Object.(time.Time)
		out = append(out, Neighbor{Address: core.Address(v), LastSeen: seen})
	}
	return out
}

// Clear drops every entry.
func (t *NeighborTable) Clear() {
	t.entries.Flush()
}

func neighborKey(addr core.Address) string {
	return strconv.FormatUint(uint64(addr), 10)
}
