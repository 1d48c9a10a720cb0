package link

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const udpReadTimeout = 200 * time.Millisecond

// UDP carries one chunk per datagram to a fixed set of peers, emulating a
// radio broadcast over an IP network.
type UDP struct {
	conn  *net.UDPConn
	peers []*net.UDPAddr

	mu     sync.RWMutex
	recv   Receiver
	closed atomic.Bool
}

// ListenUDP binds listen and resolves every peer address.
func ListenUDP(listen string, peers []string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", listen, err)
	}
	resolved := make([]*net.UDPAddr, 0, len(peers))
	for _, p := range peers {
		addr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			return nil, fmt.Errorf("resolve peer %q: %w", p, err)
		}
		resolved = append(resolved, addr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", listen, err)
	}
	return &UDP{conn: conn, peers: resolved}, nil
}

// Bind attaches the receiver fed by Run.
func (u *UDP) Bind(r Receiver) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.recv = r
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// SendChunk writes chunk to every peer and reports it accepted.
func (u *UDP) SendChunk(chunk []byte) error {
	if u.closed.Load() {
		return fmt.Errorf("udp %s: %w", u.conn.LocalAddr(), ErrClosed)
	}
	for _, p := range u.peers {
		if _, err := u.conn.WriteToUDP(chunk, p); err != nil {
			return fmt.Errorf("write to %s: %w", p, err)
		}
	}
	if r := u.receiver(); r != nil {
		r.ChunkAccepted()
	}
	return nil
}

func (u *UDP) receiver() Receiver {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.recv
}

// Run feeds received datagrams to the bound receiver until ctx is done.
func (u *UDP) Run(ctx context.Context) error {
	r := u.receiver()
	if r == nil {
		return fmt.Errorf("udp link: no receiver bound")
	}
	err := Pump(ctx, deadlineReader{u.conn}, r.ReceiveChunk)
	if err != nil && u.closed.Load() {
		return nil
	}
	return err
}

// Close closes the socket.
func (u *UDP) Close() error {
	if u.closed.Swap(true) {
		return nil
	}
	return u.conn.Close()
}

// deadlineReader arms a read deadline before every read so Pump can observe
// context cancellation.
type deadlineReader struct {
	conn *net.UDPConn
}

func (d deadlineReader) Read(b []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(udpReadTimeout)); err != nil {
		return 0, err
	}
	n, _, err := d.conn.ReadFromUDP(b)
	return n, err
}
