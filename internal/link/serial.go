package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

const DefaultSerialReadTimeout = 100 * time.Millisecond

// SerialConfig selects and configures a serial port.
type SerialConfig struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// Serial is a serial radio link. A chunk counts as accepted once the port
// has drained it.
type Serial struct {
	port serial.Port
	name string

	writeMu sync.Mutex
	mu      sync.RWMutex
	recv    Receiver
	closed  atomic.Bool
}

// OpenSerial opens the device as 8N1 at the configured baud rate.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultSerialReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Device, err)
	}
	return NewSerial(port, cfg.Device), nil
}

// NewSerial wraps an already open port.
func NewSerial(port serial.Port, name string) *Serial {
	return &Serial{port: port, name: name}
}

// Bind attaches the receiver fed by Run.
func (s *Serial) Bind(r Receiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv = r
}

func (s *Serial) receiver() Receiver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recv
}

// SendChunk writes chunk, waits for the port to drain and reports it
// accepted.
func (s *Serial) SendChunk(chunk []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("serial %s: %w", s.name, ErrClosed)
	}
	s.writeMu.Lock()
	if _, err := s.port.Write(chunk); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("serial %s write: %w", s.name, err)
	}
	if err := s.port.Drain(); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("serial %s drain: %w", s.name, err)
	}
	s.writeMu.Unlock()

	if r := s.receiver(); r != nil {
		r.ChunkAccepted()
	}
	return nil
}

// Run feeds bytes read from the port to the bound receiver until ctx is done
// or the port is closed.
func (s *Serial) Run(ctx context.Context) error {
	r := s.receiver()
	if r == nil {
		return fmt.Errorf("serial %s: no receiver bound", s.name)
	}
	err := Pump(ctx, s.port, r.ReceiveChunk)
	if err != nil && s.closed.Load() {
		return nil
	}
	return err
}

// Close closes the port.
func (s *Serial) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.port.Close()
}
