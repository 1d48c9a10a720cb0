package framer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/floodstack/internal/core"
)

// recorder collects chunks written by a framer and frames delivered by one.
type recorder struct {
	mu     sync.Mutex
	chunks [][]byte
	frames [][]byte
}

func (r *recorder) write(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, append([]byte(nil), b...))
	return nil
}

func (r *recorder) deliver(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, b)
}

func (r *recorder) Chunks() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

func (r *recorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PacingTimeout = 20 * time.Millisecond
	cfg.ReceiveTimeout = 50 * time.Millisecond
	return cfg
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestSend_Chunks(t *testing.T) {
	rec := &recorder{}
	var f *Framer
	f = New(testConfig(), func(b []byte) error {
		_ = rec.write(b)
		f.ChunkAccepted()
		return nil
	}, rec.deliver)
	defer f.Close()

	require.NoError(t, f.Send(context.Background(), payload(40)))

	chunks := rec.Chunks()
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 19)
	assert.Len(t, chunks[1], 19)
	assert.Len(t, chunks[2], 6)
	assert.Equal(t, []byte{0x41, 0x54, 0x2B, 40}, chunks[0][:4])
	assert.Equal(t, payload(40), bytes.Join(chunks, nil)[4:])
}

func TestSend_TooLarge(t *testing.T) {
	rec := &recorder{}
	f := New(testConfig(), rec.write, rec.deliver)
	defer f.Close()

	err := f.Send(context.Background(), payload(125))
	assert.ErrorIs(t, err, core.ErrFrameTooLarge)
	assert.Empty(t, rec.Chunks())

	require.NoError(t, f.Send(context.Background(), payload(124)))
	assert.Len(t, bytes.Join(rec.Chunks(), nil), 128)
}

func TestSend_PacingTimeoutProceeds(t *testing.T) {
	rec := &recorder{}
	f := New(testConfig(), rec.write, rec.deliver)
	defer f.Close()

	start := time.Now()
	require.NoError(t, f.Send(context.Background(), payload(40)))

	assert.Len(t, rec.Chunks(), 3)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSend_StaleAcceptIgnored(t *testing.T) {
	rec := &recorder{}
	f := New(testConfig(), rec.write, rec.deliver)
	defer f.Close()

	f.ChunkAccepted()
	start := time.Now()
	require.NoError(t, f.Send(context.Background(), payload(20)))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSend_ContextCanceled(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig()
	cfg.PacingTimeout = time.Hour
	f := New(cfg, rec.write, rec.deliver)
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.Send(ctx, payload(40))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, rec.Chunks(), 1)
}

func TestSend_WriteErrorAborts(t *testing.T) {
	boom := errors.New("link down")
	calls := 0
	f := New(testConfig(), func([]byte) error {
		calls++
		return boom
	}, func([]byte) {})
	defer f.Close()

	err := f.Send(context.Background(), payload(40))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{4, 15, 19, 60, 124} {
		tx := &recorder{}
		rx := &recorder{}
		sender := New(testConfig(), tx.write, nil)
		receiver := New(testConfig(), nil, rx.deliver)

		require.NoError(t, sender.Send(context.Background(), payload(n)))
		for _, c := range tx.Chunks() {
			require.NoError(t, receiver.Receive(c))
		}

		require.Len(t, rx.Frames(), 1, "size %d", n)
		assert.Equal(t, payload(n), rx.Frames()[0])
		assert.Equal(t, StateAwaitingStart, receiver.State())
		assert.Zero(t, receiver.Buffered())

		sender.Close()
		receiver.Close()
	}
}

func TestReceive_StateMachine(t *testing.T) {
	rx := &recorder{}
	f := New(testConfig(), nil, rx.deliver)
	defer f.Close()

	require.NoError(t, f.Receive([]byte{0x41, 0x54, 0x2B, 10, 1, 2, 3}))
	assert.Equal(t, StateAwaitingContinuation, f.State())
	assert.Equal(t, 7, f.Buffered())

	require.NoError(t, f.Receive([]byte{4, 5, 6, 7, 8, 9, 10, 0xEE, 0xEE}))
	require.Len(t, rx.Frames(), 1)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, rx.Frames()[0])
	assert.Equal(t, StateAwaitingStart, f.State())
	assert.Zero(t, f.Buffered(), "bytes past the declared length are discarded")
}

func TestReceive_SplitStartMarker(t *testing.T) {
	rx := &recorder{}
	f := New(testConfig(), nil, rx.deliver)
	defer f.Close()

	require.NoError(t, f.Receive([]byte{0x41}))
	require.NoError(t, f.Receive([]byte{0x54, 0x2B}))
	assert.Equal(t, StateAwaitingStart, f.State())
	require.NoError(t, f.Receive([]byte{4, 9, 9, 9, 9}))

	require.Len(t, rx.Frames(), 1)
	assert.Equal(t, []byte{9, 9, 9, 9}, rx.Frames()[0])
}

func TestReceive_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		chunk []byte
	}{
		{"garbage", []byte{0x00, 0x01, 0x02, 0x03, 0x04}},
		{"short garbage", []byte{0x42}},
		{"declared length 3", []byte{0x41, 0x54, 0x2B, 3, 1, 2, 3}},
		{"declared length 0", []byte{0x41, 0x54, 0x2B, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rx := &recorder{}
			f := New(testConfig(), nil, rx.deliver)
			defer f.Close()

			err := f.Receive(tt.chunk)
			assert.ErrorIs(t, err, core.ErrMalformed)
			assert.Equal(t, StateAwaitingStart, f.State())
			assert.Zero(t, f.Buffered())
			assert.Empty(t, rx.Frames())
		})
	}
}

func TestReceive_Overflow(t *testing.T) {
	f := New(testConfig(), nil, func([]byte) { t.Fatal("unexpected frame") })
	defer f.Close()

	// The length byte can declare more than the link MTU allows.
	require.NoError(t, f.Receive([]byte{0x41, 0x54, 0x2B, 200}))
	err := f.Receive(payload(150))
	assert.ErrorIs(t, err, core.ErrMalformed)
	assert.Zero(t, f.Buffered())
}

func TestReceive_Timeout(t *testing.T) {
	rx := &recorder{}
	f := New(testConfig(), nil, rx.deliver)
	defer f.Close()

	require.NoError(t, f.Receive([]byte{0x41, 0x54, 0x2B, 20, 1, 2}))
	require.Eventually(t, func() bool {
		return f.State() == StateAwaitingStart && f.Buffered() == 0
	}, time.Second, 5*time.Millisecond)

	// The continuation of the abandoned frame is now garbage.
	err := f.Receive(payload(18))
	assert.ErrorIs(t, err, core.ErrMalformed)
	assert.Empty(t, rx.Frames())
}

func TestReceive_ChunkRestartsTimeout(t *testing.T) {
	rx := &recorder{}
	cfg := testConfig()
	cfg.ReceiveTimeout = 60 * time.Millisecond
	f := New(cfg, nil, rx.deliver)
	defer f.Close()

	require.NoError(t, f.Receive([]byte{0x41, 0x54, 0x2B, 6, 1, 2}))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, f.Receive([]byte{3, 4}))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, f.Receive([]byte{5, 6}))

	require.Len(t, rx.Frames(), 1)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, rx.Frames()[0])
}

func TestClose(t *testing.T) {
	rec := &recorder{}
	f := New(testConfig(), rec.write, rec.deliver)

	require.NoError(t, f.Receive([]byte{0x41, 0x54, 0x2B, 20}))
	f.Close()
	f.Close()

	assert.Zero(t, f.Buffered())
	assert.ErrorIs(t, f.Receive([]byte{1}), core.ErrStackClosed)
	assert.ErrorIs(t, f.Send(context.Background(), payload(4)), core.ErrStackClosed)
}

func TestClose_UnblocksSend(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig()
	cfg.PacingTimeout = time.Hour
	f := New(cfg, rec.write, rec.deliver)

	errc := make(chan error, 1)
	go func() { errc <- f.Send(context.Background(), payload(60)) }()

	require.Eventually(t, func() bool { return len(rec.Chunks()) == 1 }, time.Second, time.Millisecond)
	f.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, core.ErrStackClosed)
	case <-time.After(time.Second):
		t.Fatal("send still blocked after close")
	}
}
