package table

import (
	"sync"
	"time"

	"firestige.xyz/floodstack/internal/core"
)

// RouteEntry is one candidate path to a non-neighbor destination.
type RouteEntry struct {
	Destination core.Address
	NextHop     core.Address
	Hops        int
	UpdatedAt   time.Time
}

// RouteTable keeps, per destination, at most one entry per next hop.
// Hop counts for a given (destination, next hop) only ever decrease.
type RouteTable struct {
	mu     sync.Mutex
	routes map[core.Address][]*RouteEntry
}

// NewRouteTable creates an empty route table.
func NewRouteTable() *RouteTable {
	return &RouteTable{routes: make(map[core.Address][]*RouteEntry)}
}

// Update records that dest is reachable through next in hops hops.
// An existing entry for the same next hop is only changed when hops is
// strictly smaller, so repeated updates are idempotent.
func (t *RouteTable) Update(dest, next core.Address, hops int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.routes[dest] {
		if e.NextHop != next {
			continue
		}
		if hops < e.Hops {
			e.Hops = hops
			e.UpdatedAt = now
		}
		return
	}
	t.routes[dest] = append(t.routes[dest], &RouteEntry{
		Destination: dest,
		NextHop:     next,
		Hops:        hops,
		UpdatedAt:   now,
	})
}

// Contains reports whether any route to dest is known.
func (t *RouteTable) Contains(dest core.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.routes[dest]) > 0
}

// Remove discards every route to dest.
func (t *RouteTable) Remove(dest core.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.routes, dest)
}

// Entries returns copies of the candidate routes to dest.
func (t *RouteTable) Entries(dest core.Address) []RouteEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.routes[dest]
	out := make([]RouteEntry, 0, len(list))
	for _, e := range list {
		out = append(out, *e)
	}
	return out
}

// Best returns the candidate with the fewest hops; ties keep the older entry.
func (t *RouteTable) Best(dest core.Address) (RouteEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best *RouteEntry
	for _, e := range t.routes[dest] {
		if best == nil || e.Hops < best.Hops {
			best = e
		}
	}
	if best == nil {
		return RouteEntry{}, false
	}
	return *best, true
}

// Len returns the number of destinations with at least one route.
func (t *RouteTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.routes)
}

// Snapshot returns every entry. Order is unspecified.
func (t *RouteTable) Snapshot() []RouteEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []RouteEntry
	for _, list := range t.routes {
		for _, e := range list {
			out = append(out, *e)
		}
	}
	return out
}

// Clear drops every route.
func (t *RouteTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = make(map[core.Address][]*RouteEntry)
}
