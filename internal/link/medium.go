package link

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"firestige.xyz/floodstack/internal/core"
)

const portInboxSize = 1024

// Medium is an in-memory shared radio channel. A chunk written by a port is
// heard, in order, by every port connected to it.
type Medium struct {
	mu    sync.RWMutex
	ports map[core.Address]*Port
	adj   map[core.Address]map[core.Address]struct{}
	loss  float64
	wg    sync.WaitGroup
}

// NewMedium creates an empty medium.
func NewMedium() *Medium {
	return &Medium{
		ports: make(map[core.Address]*Port),
		adj:   make(map[core.Address]map[core.Address]struct{}),
	}
}

// SetLoss sets the probability in [0, 1] that a chunk is lost on one hop.
func (m *Medium) SetLoss(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loss = min(max(p, 0), 1)
}

// Port returns the port for addr, creating it on first use.
func (m *Medium) Port(addr core.Address) *Port {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.ports[addr]; ok {
		return p
	}
	p := &Port{
		addr:   addr,
		medium: m,
		inbox:  make(chan []byte, portInboxSize),
		done:   make(chan struct{}),
	}
	m.ports[addr] = p
	m.wg.Add(1)
	go p.deliver(&m.wg)
	return p
}

// Connect makes a and b hear each other.
func (m *Medium) Connect(a, b core.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link(a, b)
	m.link(b, a)
}

func (m *Medium) link(from, to core.Address) {
	peers, ok := m.adj[from]
	if !ok {
		peers = make(map[core.Address]struct{})
		m.adj[from] = peers
	}
	peers[to] = struct{}{}
}

// Disconnect removes the link between a and b.
func (m *Medium) Disconnect(a, b core.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.adj[a], b)
	delete(m.adj[b], a)
}

// Line connects addrs as a chain, each node hearing only its predecessor and
// successor.
func (m *Medium) Line(addrs ...core.Address) {
	for i := 1; i < len(addrs); i++ {
		m.Connect(addrs[i-1], addrs[i])
	}
}

// Close stops every port and waits for pending deliveries to finish.
func (m *Medium) Close() {
	m.mu.Lock()
	for _, p := range m.ports {
		p.close()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// broadcast queues chunk on every port adjacent to from.
func (m *Medium) broadcast(from core.Address, chunk []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for to := range m.adj[from] {
		p, ok := m.ports[to]
		if !ok {
			continue
		}
		if m.loss > 0 && rand.Float64() < m.loss {
			p.lost.Add(1)
			continue
		}
		p.enqueue(chunk)
	}
}

// Port is one node's attachment to a Medium. It implements the stack
// transport.
type Port struct {
	addr   core.Address
	medium *Medium
	inbox  chan []byte
	done   chan struct{}

	mu     sync.RWMutex
	recv   Receiver
	closed bool

	sent      atomic.Int64
	delivered atomic.Int64
	lost      atomic.Int64
	overflow  atomic.Int64
}

// Bind attaches the receiver that hears this port's traffic.
func (p *Port) Bind(r Receiver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recv = r
}

// Addr returns the port address.
func (p *Port) Addr() core.Address {
	return p.addr
}

// SendChunk puts chunk on the medium and reports it accepted.
func (p *Port) SendChunk(chunk []byte) error {
	p.mu.RLock()
	closed, recv := p.closed, p.recv
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("port %s: %w", p.addr, ErrClosed)
	}

	p.medium.broadcast(p.addr, append([]byte(nil), chunk...))
	p.sent.Add(1)
	if recv != nil {
		recv.ChunkAccepted()
	}
	return nil
}

func (p *Port) enqueue(chunk []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.inbox <- chunk:
	default:
		p.overflow.Add(1)
	}
}

func (p *Port) deliver(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-p.done:
			return
		case chunk := <-p.inbox:
			p.mu.RLock()
			recv := p.recv
			p.mu.RUnlock()
			if recv != nil {
				recv.ReceiveChunk(chunk)
				p.delivered.Add(1)
			}
		}
	}
}

func (p *Port) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}

// PortStats counts chunks through a port.
type PortStats struct {
	Sent      int64
	Delivered int64
	Lost      int64
	Overflow  int64
}

// Stats returns the port counters.
func (p *Port) Stats() PortStats {
	return PortStats{
		Sent:      p.sent.Load(),
		Delivered: p.delivered.Load(),
		Lost:      p.lost.Load(),
		Overflow:  p.overflow.Load(),
	}
}
