package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"firestige.xyz/floodstack/internal/core"
)

type recorder struct {
	mu       sync.Mutex
	chunks   [][]byte
	accepted int
}

func (r *recorder) ReceiveChunk(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *recorder) ChunkAccepted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted++
}

func (r *recorder) Chunks() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.chunks...)
}

func (r *recorder) Accepted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepted
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// scriptReader replays reads, then blocks on timeouts until canceled.
type scriptReader struct {
	reads [][]byte
	err   error
}

func (s *scriptReader) Read(b []byte) (int, error) {
	if len(s.reads) > 0 {
		n := copy(b, s.reads[0])
		s.reads = s.reads[1:]
		return n, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	time.Sleep(time.Millisecond)
	return 0, timeoutErr{}
}

func TestPump(t *testing.T) {
	r := &scriptReader{reads: [][]byte{[]byte("AT+"), {}, []byte("abc")}}
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Pump(ctx, r, rec.ReceiveChunk) }()

	require.Eventually(t, func() bool { return len(rec.Chunks()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, [][]byte{[]byte("AT+"), []byte("abc")}, rec.Chunks())
}

func TestPump_Error(t *testing.T) {
	boom := errors.New("device unplugged")
	err := Pump(context.Background(), &scriptReader{err: boom}, func([]byte) {})
	assert.ErrorIs(t, err, boom)
}

func TestMedium_Line(t *testing.T) {
	m := NewMedium()
	defer m.Close()
	m.Line(1, 2, 3)

	recs := map[core.Address]*recorder{}
	for _, addr := range []core.Address{1, 2, 3} {
		recs[addr] = &recorder{}
		m.Port(addr).Bind(recs[addr])
	}

	require.NoError(t, m.Port(2).SendChunk([]byte{1, 2}))
	require.NoError(t, m.Port(2).SendChunk([]byte{3}))
	require.NoError(t, m.Port(1).SendChunk([]byte{9}))

	require.Eventually(t, func() bool {
		return len(recs[1].Chunks()) == 2 && len(recs[3].Chunks()) == 2 && len(recs[2].Chunks()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, [][]byte{{1, 2}, {3}}, recs[1].Chunks())
	assert.Equal(t, [][]byte{{1, 2}, {3}}, recs[3].Chunks())
	assert.Equal(t, [][]byte{{9}}, recs[2].Chunks())
	assert.Equal(t, 2, recs[2].Accepted())
	assert.Equal(t, int64(2), m.Port(2).Stats().Sent)
	assert.Same(t, m.Port(2), m.Port(2))
}

func TestMedium_DisconnectAndLoss(t *testing.T) {
	m := NewMedium()
	defer m.Close()
	m.Connect(1, 2)
	rec := &recorder{}
	m.Port(1)
	m.Port(2).Bind(rec)

	m.Disconnect(1, 2)
	require.NoError(t, m.Port(1).SendChunk([]byte{1}))

	m.Connect(1, 2)
	m.SetLoss(1)
	require.NoError(t, m.Port(1).SendChunk([]byte{2}))
	assert.Equal(t, int64(1), m.Port(2).Stats().Lost)

	m.SetLoss(0)
	require.NoError(t, m.Port(1).SendChunk([]byte{3}))
	require.Eventually(t, func() bool { return len(rec.Chunks()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, [][]byte{{3}}, rec.Chunks())
}

func TestMedium_ClosedPort(t *testing.T) {
	m := NewMedium()
	p := m.Port(1)
	m.Close()
	assert.ErrorIs(t, p.SendChunk([]byte{1}), ErrClosed)
}

func TestUDP(t *testing.T) {
	b, err := ListenUDP("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer b.Close()
	a, err := ListenUDP("127.0.0.1:0", []string{b.LocalAddr().String()})
	require.NoError(t, err)
	defer a.Close()

	recA, recB := &recorder{}, &recorder{}
	a.Bind(recA)
	b.Bind(recB)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.NoError(t, a.SendChunk([]byte("AT+\x04ping")))
	assert.Equal(t, 1, recA.Accepted())

	require.Eventually(t, func() bool { return len(recB.Chunks()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("AT+\x04ping"), recB.Chunks()[0])

	cancel()
	require.NoError(t, <-done)
}

func TestUDP_BadAddress(t *testing.T) {
	_, err := ListenUDP("127.0.0.1:0", []string{"not an address"})
	assert.Error(t, err)
}

// fakePort implements the parts of serial.Port the link uses.
type fakePort struct {
	serial.Port

	mu      sync.Mutex
	written bytes.Buffer
	drains  int
	in      chan []byte
	closed  chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{in: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakePort) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(b)
}

func (f *fakePort) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return nil
}

func (f *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-f.in:
		return copy(b, chunk), nil
	case <-f.closed:
		return 0, io.ErrClosedPipe
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (f *fakePort) Close() error {
	close(f.closed)
	return nil
}

func TestSerial(t *testing.T) {
	port := newFakePort()
	s := NewSerial(port, "/dev/fake")
	rec := &recorder{}
	s.Bind(rec)

	require.NoError(t, s.SendChunk([]byte("AT+")))
	require.NoError(t, s.SendChunk([]byte{4}))
	assert.Equal(t, "AT+\x04", port.written.String())
	assert.Equal(t, 2, port.drains)
	assert.Equal(t, 2, rec.Accepted())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	port.in <- []byte("hello")
	require.Eventually(t, func() bool { return len(rec.Chunks()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, <-done)
	assert.ErrorIs(t, s.SendChunk([]byte{1}), ErrClosed)
}
