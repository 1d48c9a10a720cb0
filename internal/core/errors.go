// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Layers return these wrapped with context; the stack logs
// and counts them but never surfaces protocol failures to its callers.
var (
	// Outbound size errors
	ErrFrameTooLarge   = errors.New("floodstack: frame exceeds transport capacity")
	ErrPayloadTooLarge = errors.New("floodstack: payload exceeds router capacity")

	// Inbound errors
	ErrMalformed         = errors.New("floodstack: malformed input")
	ErrReassemblyTimeout = errors.New("floodstack: reassembly timeout")

	// Inbound drops, not failures
	ErrDuplicate      = errors.New("floodstack: duplicate packet")
	ErrLoopback       = errors.New("floodstack: own packet echoed back")
	ErrUnexpected     = errors.New("floodstack: frame outside current stream")
	ErrNotDeliverable = errors.New("floodstack: packet type not deliverable")

	// Local resource limits
	ErrQueueFull = errors.New("floodstack: forward queue full")

	// Lifecycle errors
	ErrStackClosed = errors.New("floodstack: stack closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("floodstack: invalid configuration")
)
