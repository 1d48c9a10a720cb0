// Package core defines core data structures with zero protocol logic.
package core

// Layer header sizes, all fixed on the wire.
const (
	TransportHeaderLen = 4  // start marker(3) + length(1)
	FrameHeaderLen     = 6  // stream id(2) + frame count(2) + frame index(2)
	FloodHeaderLen     = 28 // id(16) + type(1) + source(5) + sender(5) + hop(1)

	// MaxFramesPerStream is bounded by the 2-byte frame count field.
	MaxFramesPerStream = 65536
)

// Sizes are the per-layer capacities derived once from the transport MTU.
type Sizes struct {
	MTU             int // Transport buffer size of the remote hardware
	MaxFrame        int // Largest payload the transport framer accepts
	MaxRouterData   int // Largest payload the flood router accepts
	MaxFramePayload int // Payload bytes carried by one fragmentation frame
	MaxStream       int // Largest message the fragmentation layer sends untruncated
}

// DeriveSizes computes layer capacities for the given MTU.
func DeriveSizes(mtu int) Sizes {
	s := Sizes{MTU: mtu}
	s.MaxFrame = mtu - TransportHeaderLen
	s.MaxRouterData = s.MaxFrame - FloodHeaderLen
	s.MaxFramePayload = s.MaxRouterData - FrameHeaderLen
	s.MaxStream = s.MaxFramePayload * MaxFramesPerStream
	return s
}

// Valid reports whether every layer still has room for payload.
func (s Sizes) Valid() bool {
	return s.MaxFramePayload > 0 && s.MaxFrame <= 255
}
