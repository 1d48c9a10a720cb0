// Package router implements the flood router: every packet carries a unique
// id, its source, the last-hop sender and a hop count. Inbound packets are
// deduplicated, feed the neighbor and route tables, are delivered upward and
// re-broadcast until the hop limit.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/log"
	"firestige.xyz/floodstack/internal/metrics"
	"firestige.xyz/floodstack/internal/table"
	"firestige.xyz/floodstack/internal/wire"
)

const DefaultMaxHops = 3

// Config holds the router settings.
type Config struct {
	Local         core.Address
	MaxPayload    int // Largest payload Send accepts (MTU - 4 - 28)
	MaxHops       int
	DedupCapacity int
	NeighborTTL   time.Duration
	Clock         func() time.Time
	Metrics       *metrics.Node
}

// DefaultConfig returns the settings for a 128-byte MTU link.
func DefaultConfig(local core.Address) Config {
	return Config{
		Local:         local,
		MaxPayload:    core.DeriveSizes(128).MaxRouterData,
		MaxHops:       DefaultMaxHops,
		DedupCapacity: table.DefaultDedupCapacity,
		NeighborTTL:   table.DefaultNeighborTTL,
	}
}

// Deps are the router's neighbors in the stack.
type Deps struct {
	// Down transmits a locally originated packet.
	Down func(ctx context.Context, packet []byte) error
	// Up receives the payload of every accepted broadcast.
	Up func(src core.Address, payload []byte)
	// Forward receives re-encoded packets that must be re-broadcast as is.
	Forward func(packet []byte)
}

// Router is safe for concurrent use.
type Router struct {
	cfg  Config
	deps Deps
	m    *metrics.Node
	log  log.Logger

	dedup     *table.DedupCache
	neighbors *table.NeighborTable
	routes    *table.RouteTable

	mu     sync.Mutex
	closed bool
}

// New creates a router.
func New(cfg Config, deps Deps) *Router {
	d := DefaultConfig(cfg.Local)
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = d.MaxPayload
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = d.MaxHops
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = d.DedupCapacity
	}
	if cfg.NeighborTTL <= 0 {
		cfg.NeighborTTL = d.NeighborTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Router{
		cfg:       cfg,
		deps:      deps,
		m:         cfg.Metrics,
		log:       log.GetLogger().WithFields(map[string]interface{}{"layer": metrics.LayerRouter, "node": cfg.Metrics.Label()}),
		dedup:     table.NewDedupCache(cfg.DedupCapacity),
		neighbors: table.NewNeighborTable(cfg.NeighborTTL),
		routes:    table.NewRouteTable(),
	}
}

// Send broadcasts payload with a fresh packet id. dst is accepted for
// interface symmetry; every packet is encoded as a broadcast.
func (r *Router) Send(ctx context.Context, dst core.Address, payload []byte) error {
	if r.isClosed() {
		return core.ErrStackClosed
	}
	if len(payload) > r.cfg.MaxPayload {
		r.m.Drop(metrics.LayerRouter, core.ErrPayloadTooLarge)
		return fmt.Errorf("router: %d bytes, max %d: %w", len(payload), r.cfg.MaxPayload, core.ErrPayloadTooLarge)
	}
	if dst != core.Broadcast && r.log.IsTraceEnabled() {
		r.log.WithField("dst", dst).Trace("unicast send encoded as broadcast")
	}

	hdr := wire.FloodPacket{
		ID:     core.NewPacketID(),
		Type:   wire.FloodTypeBroadcast,
		Source: r.cfg.Local,
		Sender: r.cfg.Local,
		Hops:   0,
	}
	pkt, err := wire.EncodeFlood(hdr, payload)
	if err != nil {
		return fmt.Errorf("router: encode: %w", err)
	}
	if err := r.deps.Down(ctx, pkt); err != nil {
		return fmt.Errorf("router: packet %s: %w", hdr.ID, err)
	}
	r.m.Packet(metrics.DirectionOut)
	return nil
}

// Receive processes one inbound packet. The returned error reports why the
// packet was discarded; packets that update the tables but are not delivered
// report core.ErrNotDeliverable.
func (r *Router) Receive(packet []byte) error {
	var hdr wire.FloodPacket
	if err := hdr.DecodeFromBytes(packet, gopacket.NilDecodeFeedback); err != nil {
		return r.drop(fmt.Errorf("router: %w", err))
	}
	r.m.Packet(metrics.DirectionIn)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return core.ErrStackClosed
	}
	if hdr.Source == r.cfg.Local {
		r.mu.Unlock()
		return r.drop(fmt.Errorf("router: packet %s: %w", hdr.ID, core.ErrLoopback))
	}
	if r.dedup.Contains(hdr.ID) {
		r.mu.Unlock()
		return r.drop(fmt.Errorf("router: packet %s: %w", hdr.ID, core.ErrDuplicate))
	}
	r.dedup.Add(hdr.ID)

	now := r.cfg.Clock()
	if r.routes.Contains(hdr.Sender) {
		r.routes.Remove(hdr.Sender)
	}
	r.neighbors.Update(hdr.Sender, now)

	hops := int(hdr.Hops) + 1
	if !r.neighbors.Contains(hdr.Source) {
		r.routes.Update(hdr.Source, hdr.Sender, hops, now)
	}
	r.m.Tables(r.neighbors.Len(), r.routes.Len())
	r.mu.Unlock()

	if hdr.Type != wire.FloodTypeBroadcast {
		return r.drop(fmt.Errorf("router: packet %s type %s: %w", hdr.ID, hdr.Type, core.ErrNotDeliverable))
	}

	r.m.Packet(metrics.DirectionDelivered)
	r.deps.Up(hdr.Source, append([]byte(nil), hdr.Payload...))

	if hops >= r.cfg.MaxHops {
		return nil
	}
	hdr.Sender = r.cfg.Local
	hdr.Hops = uint8(hops)
	fwd, err := wire.EncodeFlood(hdr, hdr.Payload)
	if err != nil {
		return fmt.Errorf("router: re-encode %s: %w", hdr.ID, err)
	}
	r.m.Packet(metrics.DirectionForwarded)
	r.deps.Forward(fwd)
	return nil
}

func (r *Router) drop(err error) error {
	r.m.Drop(metrics.LayerRouter, err)
	if r.log.IsDebugEnabled() {
		r.log.WithError(err).Debug("packet discarded")
	}
	return err
}

// Neighbors returns the neighbor table contents.
func (r *Router) Neighbors() []table.Neighbor {
	return r.neighbors.Snapshot()
}

// Routes returns every route candidate.
func (r *Router) Routes() []table.RouteEntry {
	return r.routes.Snapshot()
}

// IsNeighbor reports whether addr is in the neighbor table.
func (r *Router) IsNeighbor(addr core.Address) bool {
	return r.neighbors.Contains(addr)
}

// BestRoute returns the lowest-hop candidate for dest.
func (r *Router) BestRoute(dest core.Address) (table.RouteEntry, bool) {
	return r.routes.Best(dest)
}

// Sweep evicts neighbors not heard within the TTL and returns how many.
func (r *Router) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	n := r.neighbors.Sweep(now)
	r.m.Tables(r.neighbors.Len(), r.routes.Len())
	if n > 0 {
		r.log.WithField("evicted", n).Debug("neighbor sweep")
	}
	return n
}

func (r *Router) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close drops every table.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.dedup.Clear()
	r.neighbors.Clear()
	r.routes.Clear()
	r.m.Tables(0, 0)
}
