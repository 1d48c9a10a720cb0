// Package link provides byte links a stack can run on: a serial radio port,
// UDP datagrams standing in for the radio, and an in-memory broadcast medium.
package link

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
)

// ErrClosed is returned when writing to a closed link.
var ErrClosed = errors.New("link: closed")

// Receiver is the stack side of a link.
type Receiver interface {
	ReceiveChunk(chunk []byte)
	ChunkAccepted()
}

const readBufferSize = 512

// Pump reads from r and passes every non-empty read to sink until ctx is
// done. Read timeouts and empty reads are retried; any other read error ends
// the pump and is returned, unless ctx is already done.
func Pump(ctx context.Context, r io.Reader, sink func([]byte)) error {
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			sink(append([]byte(nil), buf[:n]...))
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if isTimeout(err) {
			continue
		}
		return err
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
