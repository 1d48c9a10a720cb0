// Package fragment implements the fragmentation layer: outbound messages are
// split into numbered frames under one random stream id, inbound frames are
// reassembled into the original message. One reassembly is in flight at a
// time.
package fragment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/log"
	"firestige.xyz/floodstack/internal/metrics"
	"firestige.xyz/floodstack/internal/timer"
	"firestige.xyz/floodstack/internal/wire"
)

const DefaultStreamTimeout = 20000 * time.Millisecond

// Config holds the fragmentation settings.
type Config struct {
	MaxFramePayload int           // Message bytes carried per frame
	FrameGap        time.Duration // Pause between consecutive outbound frames
	StreamTimeout   time.Duration // Idle time before a reassembly is abandoned
	Metrics         *metrics.Node
}

// DefaultConfig returns the settings for a 128-byte MTU link.
func DefaultConfig() Config {
	return Config{
		MaxFramePayload: core.DeriveSizes(128).MaxFramePayload,
		StreamTimeout:   DefaultStreamTimeout,
	}
}

// MaxStreamSize is the largest message sent without truncation.
func (c Config) MaxStreamSize() int {
	return c.MaxFramePayload * core.MaxFramesPerStream
}

// Stream is a snapshot of the reassembly in flight.
type Stream struct {
	Active    bool
	StreamID  uint16
	Count     int
	Source    core.Address
	LastIndex int // -1 until a frame is accepted
	Buffered  int
}

type stream struct {
	id     uint16
	count  int
	source core.Address
	last   int
	buf    []byte
}

// Layer is safe for concurrent use.
type Layer struct {
	cfg  Config
	down func(ctx context.Context, dst core.Address, frame []byte) error
	up   func(src core.Address, msg []byte)
	m    *metrics.Node
	log  log.Logger

	mu     sync.Mutex
	cur    *stream
	epoch  uint64
	timer  *timer.Timer
	closed bool
	done   chan struct{}
}

// New creates a fragmentation layer. down sends one frame towards dst; up
// receives every reassembled message with the address it came from.
func New(cfg Config, down func(ctx context.Context, dst core.Address, frame []byte) error, up func(src core.Address, msg []byte)) *Layer {
	d := DefaultConfig()
	if cfg.MaxFramePayload <= 0 {
		cfg.MaxFramePayload = d.MaxFramePayload
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = d.StreamTimeout
	}
	return &Layer{
		cfg:   cfg,
		down:  down,
		up:    up,
		m:     cfg.Metrics,
		log:   log.GetLogger().WithFields(map[string]interface{}{"layer": metrics.LayerFragment, "node": cfg.Metrics.Label()}),
		timer: timer.New(),
		done:  make(chan struct{}),
	}
}

// Send splits msg into frames and hands them to down in index order, pausing
// FrameGap between frames. Messages longer than MaxStreamSize are truncated.
// It stops at the first downward error.
func (l *Layer) Send(ctx context.Context, dst core.Address, msg []byte) error {
	if l.isClosed() {
		return core.ErrStackClosed
	}
	if len(msg) == 0 {
		return nil
	}
	if limit := l.cfg.MaxStreamSize(); len(msg) > limit {
		l.log.WithFields(map[string]interface{}{"size": len(msg), "max": limit}).Warn("message truncated to max stream size")
		l.m.Truncated()
		msg = msg[:limit]
	}

	per := l.cfg.MaxFramePayload
	count := (len(msg) + per - 1) / per
	hdr := wire.StreamFrame{
		StreamID: uint16(rand.IntN(core.MaxFramesPerStream)),
		Count:    count,
	}

	for i := 0; i < count; i++ {
		chunk := msg[i*per : min((i+1)*per, len(msg))]
		hdr.Index = uint16(i)
		frame, err := wire.EncodeFrame(hdr, chunk)
		if err != nil {
			return fmt.Errorf("fragment: encode frame %d/%d: %w", i, count, err)
		}
		if err := l.down(ctx, dst, frame); err != nil {
			return fmt.Errorf("fragment: stream %d frame %d/%d: %w", hdr.StreamID, i, count, err)
		}
		if i < count-1 && l.cfg.FrameGap > 0 {
			if err := l.sleep(ctx, l.cfg.FrameGap); err != nil {
				return err
			}
		}
	}
	l.m.Stream(metrics.DirectionOut)
	return nil
}

func (l *Layer) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return core.ErrStackClosed
	}
}

// Receive processes one inbound frame from src. A complete message is passed
// to up. The returned error reports why the frame was discarded.
func (l *Layer) Receive(src core.Address, frame []byte) error {
	var sf wire.StreamFrame
	if err := sf.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return l.drop(fmt.Errorf("fragment: %w", err))
	}
	index := int(sf.Index)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return core.ErrStackClosed
	}

	if sf.Count == 1 {
		l.mu.Unlock()
		l.deliver(src, append([]byte(nil), sf.Payload...))
		return nil
	}

	l.epoch++
	epoch := l.epoch
	l.timer.Start(func() { l.expire(epoch) }, l.cfg.StreamTimeout)

	if index == 0 {
		if l.cur != nil && l.log.IsDebugEnabled() {
			l.log.WithFields(map[string]interface{}{"stream": l.cur.id, "source": l.cur.source}).Debug("unfinished stream replaced")
		}
		l.cur = &stream{
			id:     sf.StreamID,
			count:  sf.Count,
			source: src,
			last:   0,
			buf:    append([]byte(nil), sf.Payload...),
		}
		l.mu.Unlock()
		l.m.Reassembling(true)
		return nil
	}

	cur := l.cur
	switch {
	case cur == nil:
		l.mu.Unlock()
		return l.drop(fmt.Errorf("fragment: stream %d frame %d with no reassembly: %w", sf.StreamID, index, core.ErrUnexpected))
	case cur.source != src || cur.id != sf.StreamID:
		l.mu.Unlock()
		return l.drop(fmt.Errorf("fragment: stream %d from %s, tracking %d from %s: %w", sf.StreamID, src, cur.id, cur.source, core.ErrUnexpected))
	case index <= cur.last || index >= cur.count || index != cur.last+1:
		last := cur.last
		l.mu.Unlock()
		return l.drop(fmt.Errorf("fragment: stream %d frame %d after %d of %d: %w", sf.StreamID, index, last, cur.count, core.ErrUnexpected))
	}

	cur.buf = append(cur.buf, sf.Payload...)
	cur.last = index
	if index < cur.count-1 {
		l.mu.Unlock()
		return nil
	}

	msg := cur.buf
	l.resetLocked()
	l.mu.Unlock()

	l.m.Reassembling(false)
	l.deliver(src, msg)
	return nil
}

func (l *Layer) deliver(src core.Address, msg []byte) {
	l.m.Stream(metrics.DirectionIn)
	l.up(src, msg)
}

func (l *Layer) drop(err error) error {
	l.m.Drop(metrics.LayerFragment, err)
	if l.log.IsDebugEnabled() {
		l.log.WithError(err).Debug("frame discarded")
	}
	return err
}

func (l *Layer) expire(epoch uint64) {
	l.mu.Lock()
	if l.closed || l.epoch != epoch || l.cur == nil {
		l.mu.Unlock()
		return
	}
	cur := l.cur
	l.resetLocked()
	l.mu.Unlock()

	l.m.Reassembling(false)
	l.m.Timeout(metrics.LayerFragment)
	l.log.WithFields(map[string]interface{}{
		"stream":   cur.id,
		"source":   cur.source,
		"received": cur.last + 1,
		"count":    cur.count,
	}).WithError(core.ErrReassemblyTimeout).Warn("stream reassembly timed out")
}

// resetLocked abandons the reassembly in flight.
// Must be called with l.mu held.
func (l *Layer) resetLocked() {
	l.cur = nil
	l.epoch++
	l.timer.Reset()
}

// Snapshot returns the state of the reassembly in flight.
func (l *Layer) Snapshot() Stream {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return Stream{LastIndex: -1}
	}
	return Stream{
		Active:    true,
		StreamID:  l.cur.id,
		Count:     l.cur.count,
		Source:    l.cur.source,
		LastIndex: l.cur.last,
		Buffered:  len(l.cur.buf),
	}
}

func (l *Layer) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close cancels the stream timer and drops the reassembly in flight.
func (l *Layer) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.timer.Cancel()
	l.cur = nil
	l.epoch++
	l.closed = true
	close(l.done)
}
