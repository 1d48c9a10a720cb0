// Package framer implements the transport framer: it chunks outbound frames
// into start-marker framed transport packets with stop-and-wait pacing, and
// reassembles inbound chunks back into frames.
package framer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/log"
	"firestige.xyz/floodstack/internal/metrics"
	"firestige.xyz/floodstack/internal/timer"
	"firestige.xyz/floodstack/internal/wire"
)

const (
	DefaultChunkSize      = 19
	DefaultPacingTimeout  = 1500 * time.Millisecond
	DefaultReceiveTimeout = 5000 * time.Millisecond

	// minDeclaredLength is the largest declared length treated as invalid.
	minDeclaredLength = 3
	// overflowSlack is how far the receive buffer may grow past the MTU
	// before it is treated as garbage.
	overflowSlack = 20
)

// State is the receive state machine mode.
type State int

const (
	StateAwaitingStart State = iota
	StateAwaitingContinuation
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting-start"
	case StateAwaitingContinuation:
		return "awaiting-continuation"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the framer settings.
type Config struct {
	MaxFrameSize   int           // Largest frame accepted by Send (MTU - 4)
	ChunkSize      int           // Largest single link write
	PacingTimeout  time.Duration // Wait for ChunkAccepted after a non-final chunk
	ReceiveTimeout time.Duration // Idle time before a partial frame is dropped
	Metrics        *metrics.Node
}

// DefaultConfig returns the settings for a 128-byte MTU link.
func DefaultConfig() Config {
	return Config{
		MaxFrameSize:   core.DeriveSizes(128).MaxFrame,
		ChunkSize:      DefaultChunkSize,
		PacingTimeout:  DefaultPacingTimeout,
		ReceiveTimeout: DefaultReceiveTimeout,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.PacingTimeout <= 0 {
		c.PacingTimeout = d.PacingTimeout
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = d.ReceiveTimeout
	}
}

// Framer is safe for concurrent use. Sends are serialized; receive state is
// guarded separately so inbound chunks are processed while a send waits.
type Framer struct {
	cfg  Config
	down func([]byte) error
	up   func([]byte)
	m    *metrics.Node
	log  log.Logger

	sendMu   sync.Mutex
	accepted chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	state    State
	buf      []byte
	declared int
	epoch    uint64
	timer    *timer.Timer
	closed   bool
}

// New creates a framer. down writes one chunk to the link; up receives every
// reassembled frame.
func New(cfg Config, down func([]byte) error, up func([]byte)) *Framer {
	cfg.applyDefaults()
	return &Framer{
		cfg:      cfg,
		down:     down,
		up:       up,
		m:        cfg.Metrics,
		log:      log.GetLogger().WithFields(map[string]interface{}{"layer": metrics.LayerFramer, "node": cfg.Metrics.Label()}),
		accepted: make(chan struct{}, 1),
		done:     make(chan struct{}),
		timer:    timer.New(),
	}
}

// Send writes frame as a sequence of chunks. After every chunk but the last it
// waits for ChunkAccepted, the pacing timeout or ctx, whichever comes first.
// Chunks are never retransmitted.
func (f *Framer) Send(ctx context.Context, frame []byte) error {
	if len(frame) > f.cfg.MaxFrameSize {
		f.m.Drop(metrics.LayerFramer, core.ErrFrameTooLarge)
		return fmt.Errorf("framer: %d bytes, max %d: %w", len(frame), f.cfg.MaxFrameSize, core.ErrFrameTooLarge)
	}
	pkt, err := wire.EncodeTransport(frame)
	if err != nil {
		return fmt.Errorf("framer: encode: %w", err)
	}

	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	if f.isClosed() {
		return core.ErrStackClosed
	}

	for off := 0; off < len(pkt); off += f.cfg.ChunkSize {
		end := min(off+f.cfg.ChunkSize, len(pkt))

		// A stale acceptance must not release the wait for this chunk.
		select {
		case <-f.accepted:
		default:
		}

		if err := f.down(pkt[off:end]); err != nil {
			return fmt.Errorf("framer: write chunk at %d: %w", off, err)
		}
		f.m.Chunk(metrics.DirectionOut)

		if end < len(pkt) {
			if err := f.waitAccepted(ctx); err != nil {
				return err
			}
		}
	}
	f.m.Frame(metrics.DirectionOut)
	return nil
}

func (f *Framer) waitAccepted(ctx context.Context) error {
	start := time.Now()
	t := time.NewTimer(f.cfg.PacingTimeout)
	defer t.Stop()

	select {
	case <-f.accepted:
	case <-t.C:
		f.log.Debug("chunk not accepted before pacing timeout, continuing")
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return core.ErrStackClosed
	}
	f.m.PacingWait(time.Since(start))
	return nil
}

// ChunkAccepted signals that the link has transmitted the last chunk.
// It never blocks.
func (f *Framer) ChunkAccepted() {
	select {
	case f.accepted <- struct{}{}:
	default:
	}
}

// Receive feeds one inbound chunk into the receive state machine. Completed
// frames are passed to up. The returned error reports why input was
// discarded; the framer has already recovered by then.
func (f *Framer) Receive(chunk []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return core.ErrStackClosed
	}
	f.m.Chunk(metrics.DirectionIn)

	f.buf = append(f.buf, chunk...)
	if len(f.buf) > f.cfg.MaxFrameSize+core.TransportHeaderLen+overflowSlack {
		n := len(f.buf)
		f.resetLocked()
		f.mu.Unlock()
		return f.drop(fmt.Errorf("framer: buffer overflow at %d bytes: %w", n, core.ErrMalformed))
	}

	f.epoch++
	epoch := f.epoch
	f.timer.Start(func() { f.expire(epoch) }, f.cfg.ReceiveTimeout)

	if f.state == StateAwaitingStart {
		if len(f.buf) < core.TransportHeaderLen {
			if wire.IsStartMarkerPrefix(f.buf) {
				f.mu.Unlock()
				return nil
			}
			f.resetLocked()
			f.mu.Unlock()
			return f.drop(fmt.Errorf("framer: garbage before start marker: %w", core.ErrMalformed))
		}
		if !wire.HasStartMarker(f.buf) {
			f.resetLocked()
			f.mu.Unlock()
			return f.drop(fmt.Errorf("framer: missing start marker: %w", core.ErrMalformed))
		}
		declared := int(f.buf[len(wire.StartMarker)])
		if declared <= minDeclaredLength {
			f.resetLocked()
			f.mu.Unlock()
			return f.drop(fmt.Errorf("framer: declared length %d: %w", declared, core.ErrMalformed))
		}
		f.declared = declared
		f.state = StateAwaitingContinuation
	}

	end := core.TransportHeaderLen + f.declared
	if len(f.buf) < end {
		f.mu.Unlock()
		return nil
	}
	frame := make([]byte, f.declared)
	copy(frame, f.buf[core.TransportHeaderLen:end])
	f.resetLocked()
	f.mu.Unlock()

	f.m.Frame(metrics.DirectionIn)
	f.up(frame)
	return nil
}

func (f *Framer) drop(err error) error {
	f.m.Drop(metrics.LayerFramer, err)
	if f.log.IsDebugEnabled() {
		f.log.WithError(err).Debug("chunk discarded")
	}
	return err
}

func (f *Framer) expire(epoch uint64) {
	f.mu.Lock()
	if f.closed || f.epoch != epoch {
		f.mu.Unlock()
		return
	}
	n := len(f.buf)
	f.resetLocked()
	f.mu.Unlock()

	f.m.Timeout(metrics.LayerFramer)
	f.log.WithField("buffered", n).WithError(core.ErrReassemblyTimeout).Warn("transport reassembly timed out")
}

// resetLocked returns to awaiting-start with an empty buffer.
// Must be called with f.mu held.
func (f *Framer) resetLocked() {
	f.state = StateAwaitingStart
	f.buf = nil
	f.declared = 0
	f.epoch++
	f.timer.Reset()
}

// State returns the current receive mode.
func (f *Framer) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Buffered returns the number of bytes held for the frame in progress.
func (f *Framer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

func (f *Framer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close cancels the receive timer and drops any partial frame.
func (f *Framer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.timer.Cancel()
	f.state = StateAwaitingStart
	f.buf = nil
	f.declared = 0
	f.epoch++
	f.closed = true
	close(f.done)
}
