package stack

import (
	"fmt"
	"time"

	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/fragment"
	"firestige.xyz/floodstack/internal/framer"
	"firestige.xyz/floodstack/internal/router"
	"firestige.xyz/floodstack/internal/table"
)

const (
	DefaultMTU           = 128
	DefaultSweepInterval = 30 * time.Second
	DefaultForwardQueue  = 64
)

// Config is the stack configuration. It is fixed at construction.
type Config struct {
	Local    core.Address
	MTU      int
	FrameGap time.Duration

	ChunkSize      int
	PacingTimeout  time.Duration
	ReceiveTimeout time.Duration
	StreamTimeout  time.Duration
	MaxHops        int
	DedupCapacity  int
	NeighborTTL    time.Duration
	SweepInterval  time.Duration
	ForwardQueue   int

	// Clock overrides time.Now for table timestamps.
	Clock func() time.Time
}

// DefaultConfig returns the defaults for a node at local.
func DefaultConfig(local core.Address) Config {
	return Config{
		Local:          local,
		MTU:            DefaultMTU,
		ChunkSize:      framer.DefaultChunkSize,
		PacingTimeout:  framer.DefaultPacingTimeout,
		ReceiveTimeout: framer.DefaultReceiveTimeout,
		StreamTimeout:  fragment.DefaultStreamTimeout,
		MaxHops:        router.DefaultMaxHops,
		DedupCapacity:  table.DefaultDedupCapacity,
		NeighborTTL:    table.DefaultNeighborTTL,
		SweepInterval:  DefaultSweepInterval,
		ForwardQueue:   DefaultForwardQueue,
	}
}

// Validate checks the configuration and returns an error wrapping
// core.ErrConfigInvalid.
func (c Config) Validate() error {
	if !c.Local.Valid() || c.Local == core.Broadcast {
		return fmt.Errorf("local address %d is not a valid node address: %w", uint64(c.Local), core.ErrConfigInvalid)
	}
	if sizes := core.DeriveSizes(c.MTU); !sizes.Valid() {
		return fmt.Errorf("mtu %d must be between %d and %d: %w", c.MTU,
			core.TransportHeaderLen+core.FloodHeaderLen+core.FrameHeaderLen+1,
			core.TransportHeaderLen+255, core.ErrConfigInvalid)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive: %w", core.ErrConfigInvalid)
	}
	if c.MaxHops <= 0 || c.MaxHops > 255 {
		return fmt.Errorf("max hops %d must be between 1 and 255: %w", c.MaxHops, core.ErrConfigInvalid)
	}
	if c.DedupCapacity <= 0 {
		return fmt.Errorf("dedup capacity must be positive: %w", core.ErrConfigInvalid)
	}
	if c.ForwardQueue <= 0 {
		return fmt.Errorf("forward queue must be positive: %w", core.ErrConfigInvalid)
	}
	for name, d := range map[string]time.Duration{
		"pacing timeout":  c.PacingTimeout,
		"receive timeout": c.ReceiveTimeout,
		"stream timeout":  c.StreamTimeout,
		"neighbor ttl":    c.NeighborTTL,
		"sweep interval":  c.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive: %w", name, core.ErrConfigInvalid)
		}
	}
	if c.FrameGap < 0 {
		return fmt.Errorf("frame gap must not be negative: %w", core.ErrConfigInvalid)
	}
	return nil
}
