// Package stack composes the transport framer, the fragmentation layer and
// the flood router into one node.
//
// Outbound messages are fragmented, each frame gets a router header and the
// resulting packet is chunked by the framer. Inbound chunks are reassembled
// by the framer into router packets; the router delivers each to the
// fragmentation layer keyed by the packet source. Packets the router
// re-broadcasts go through a forward queue straight to the framer.
package stack

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/fragment"
	"firestige.xyz/floodstack/internal/framer"
	"firestige.xyz/floodstack/internal/log"
	"firestige.xyz/floodstack/internal/metrics"
	"firestige.xyz/floodstack/internal/router"
	"firestige.xyz/floodstack/internal/table"
)

// Transport writes one chunk to the link. The link reports each transmitted
// chunk back through Stack.ChunkAccepted.
type Transport interface {
	SendChunk(chunk []byte) error
}

// Handler receives every message delivered by the stack.
type Handler interface {
	OnMessage(src core.Address, payload []byte)
}

// ForwardObserver is implemented by handlers that want to see re-broadcast
// packets.
type ForwardObserver interface {
	OnForward(packet []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(src core.Address, payload []byte)

func (f HandlerFunc) OnMessage(src core.Address, payload []byte) { f(src, payload) }

// Stack is one protocol node. Send, ReceiveChunk and ChunkAccepted are safe
// for concurrent use; Run must be running for packets to be forwarded and
// neighbors swept.
type Stack struct {
	cfg   Config
	sizes core.Sizes
	tr    Transport
	h     Handler
	m     *metrics.Node
	log   log.Logger

	framer   *framer.Framer
	fragment *fragment.Layer
	router   *router.Router

	fwd       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// New validates cfg and wires the layers.
func New(cfg Config, tr Transport, h Handler) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	m := metrics.ForNode(cfg.Local.String())
	s := &Stack{
		cfg:   cfg,
		sizes: core.DeriveSizes(cfg.MTU),
		tr:    tr,
		h:     h,
		m:     m,
		log:   log.GetLogger().WithFields(map[string]interface{}{"layer": metrics.LayerStack, "node": cfg.Local.String()}),
		fwd:   make(chan []byte, cfg.ForwardQueue),
		done:  make(chan struct{}),
	}

	s.framer = framer.New(framer.Config{
		MaxFrameSize:   s.sizes.MaxFrame,
		ChunkSize:      cfg.ChunkSize,
		PacingTimeout:  cfg.PacingTimeout,
		ReceiveTimeout: cfg.ReceiveTimeout,
		Metrics:        m,
	}, tr.SendChunk, s.onPacket)

	s.router = router.New(router.Config{
		Local:         cfg.Local,
		MaxPayload:    s.sizes.MaxRouterData,
		MaxHops:       cfg.MaxHops,
		DedupCapacity: cfg.DedupCapacity,
		NeighborTTL:   cfg.NeighborTTL,
		Clock:         cfg.Clock,
		Metrics:       m,
	}, router.Deps{
		Down:    s.framer.Send,
		Up:      s.onFrame,
		Forward: s.enqueueForward,
	})

	s.fragment = fragment.New(fragment.Config{
		MaxFramePayload: s.sizes.MaxFramePayload,
		FrameGap:        cfg.FrameGap,
		StreamTimeout:   cfg.StreamTimeout,
		Metrics:         m,
	}, s.router.Send, s.onMessage)

	s.log.WithFields(map[string]interface{}{
		"mtu":        cfg.MTU,
		"max_frame":  s.sizes.MaxFrame,
		"max_stream": s.sizes.MaxStream,
	}).Debug("stack created")
	return s, nil
}

// Sizes returns the layer capacities derived from the MTU.
func (s *Stack) Sizes() core.Sizes {
	return s.sizes
}

// Local returns the node address.
func (s *Stack) Local() core.Address {
	return s.cfg.Local
}

// Send floods msg to every node. Protocol failures are logged and counted,
// not returned: the only errors are core.ErrStackClosed and ctx errors.
func (s *Stack) Send(ctx context.Context, dst core.Address, msg []byte) error {
	if s.closed.Load() {
		return core.ErrStackClosed
	}
	if !dst.Valid() {
		s.log.WithField("dst", uint64(dst)).Warn("destination exceeds address width, message dropped")
		return nil
	}

	err := s.fragment.Send(ctx, dst, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrStackClosed):
		return core.ErrStackClosed
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		s.log.WithError(err).WithField("size", len(msg)).Warn("send failed")
		return nil
	}
}

// ReceiveChunk feeds bytes read from the link into the stack.
func (s *Stack) ReceiveChunk(chunk []byte) {
	_ = s.framer.Receive(chunk)
}

// ChunkAccepted tells the framer the link has transmitted the last chunk.
func (s *Stack) ChunkAccepted() {
	s.framer.ChunkAccepted()
}

func (s *Stack) onPacket(packet []byte) {
	_ = s.router.Receive(packet)
}

func (s *Stack) onFrame(src core.Address, frame []byte) {
	_ = s.fragment.Receive(src, frame)
}

func (s *Stack) onMessage(src core.Address, msg []byte) {
	if s.h != nil {
		s.h.OnMessage(src, msg)
	}
}

func (s *Stack) enqueueForward(packet []byte) {
	if s.closed.Load() {
		return
	}
	select {
	case s.fwd <- packet:
		s.m.ForwardQueue(len(s.fwd))
	default:
		s.m.Drop(metrics.LayerStack, core.ErrQueueFull)
		s.log.WithField("depth", cap(s.fwd)).Warn("forward queue full, packet dropped")
	}
}

// Run forwards queued packets and sweeps stale neighbors until ctx is done or
// the stack is closed. Only one Run may be active.
func (s *Stack) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case pkt := <-s.fwd:
			s.m.ForwardQueue(len(s.fwd))
			s.forward(ctx, pkt)
		case <-ticker.C:
			s.router.Sweep(s.cfg.Clock())
		}
	}
}

func (s *Stack) forward(ctx context.Context, packet []byte) {
	if obs, ok := s.h.(ForwardObserver); ok {
		obs.OnForward(packet)
	}
	if err := s.framer.Send(ctx, packet); err != nil && !errors.Is(err, core.ErrStackClosed) && ctx.Err() == nil {
		s.log.WithError(err).Warn("forward failed")
	}
}

// Neighbors returns the nodes currently heard directly.
func (s *Stack) Neighbors() []table.Neighbor {
	return s.router.Neighbors()
}

// Routes returns every known route candidate.
func (s *Stack) Routes() []table.RouteEntry {
	return s.router.Routes()
}

// Sweep evicts stale neighbors now instead of waiting for the next tick.
func (s *Stack) Sweep() int {
	return s.router.Sweep(s.cfg.Clock())
}

// Close stops Run, cancels every timer and drops all buffered state and
// tables. It is safe to call more than once.
func (s *Stack) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.framer.Close()
		s.fragment.Close()
		s.router.Close()
	drain:
		for {
			select {
			case <-s.fwd:
			default:
				break drain
			}
		}
		s.m.ForwardQueue(0)
		s.log.Debug("stack closed")
	})
	return nil
}
