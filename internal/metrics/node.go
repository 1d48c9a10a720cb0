package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/floodstack/internal/core"
)

// Node binds the global collectors to one node label so several stacks can
// share a process, as the simulator does.
type Node struct {
	label string
}

// ForNode returns the metric handle for a node label.
func ForNode(label string) *Node {
	return &Node{label: label}
}

// Label returns the node label.
func (n *Node) Label() string {
	if n == nil {
		return ""
	}
	return n.label
}

func (n *Node) Chunk(direction string) {
	if n == nil {
		return
	}
	ChunksTotal.WithLabelValues(n.label, direction).Inc()
}

func (n *Node) Frame(direction string) {
	if n == nil {
		return
	}
	FramesTotal.WithLabelValues(n.label, direction).Inc()
}

func (n *Node) PacingWait(d time.Duration) {
	if n == nil {
		return
	}
	PacingWaitSeconds.WithLabelValues(n.label).Observe(d.Seconds())
}

func (n *Node) Stream(direction string) {
	if n == nil {
		return
	}
	StreamsTotal.WithLabelValues(n.label, direction).Inc()
}

func (n *Node) Truncated() {
	if n == nil {
		return
	}
	TruncatedTotal.WithLabelValues(n.label).Inc()
}

func (n *Node) Reassembling(active bool) {
	if n == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	ReassemblyActive.WithLabelValues(n.label).Set(v)
}

func (n *Node) Packet(direction string) {
	if n == nil {
		return
	}
	PacketsTotal.WithLabelValues(n.label, direction).Inc()
}

// Drop counts a discarded input, deriving the reason from err.
func (n *Node) Drop(layer string, err error) {
	if n == nil {
		return
	}
	DropsTotal.WithLabelValues(n.label, layer, Reason(err)).Inc()
}

func (n *Node) Timeout(layer string) {
	if n == nil {
		return
	}
	TimeoutsTotal.WithLabelValues(n.label, layer).Inc()
}

func (n *Node) Tables(neighbors, routes int) {
	if n == nil {
		return
	}
	NeighborTableSize.WithLabelValues(n.label).Set(float64(neighbors))
	RouteTableSize.WithLabelValues(n.label).Set(float64(routes))
}

func (n *Node) ForwardQueue(depth int) {
	if n == nil {
		return
	}
	ForwardQueueDepth.WithLabelValues(n.label).Set(float64(depth))
}

// Reset removes every series carrying this node's label.
func (n *Node) Reset() {
	if n == nil {
		return
	}
	match := prometheus.Labels{"node": n.label}
	for _, vec := range []interface {
		DeletePartialMatch(prometheus.Labels) int
	}{
		ChunksTotal, FramesTotal, PacingWaitSeconds, StreamsTotal, TruncatedTotal,
		ReassemblyActive, PacketsTotal, DropsTotal, TimeoutsTotal,
		NeighborTableSize, RouteTableSize, ForwardQueueDepth,
	} {
		vec.DeletePartialMatch(match)
	}
}

// Reason maps a sentinel error to a drop reason label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, core.ErrMalformed):
		return "malformed"
	case errors.Is(err, core.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, core.ErrLoopback):
		return "loopback"
	case errors.Is(err, core.ErrUnexpected):
		return "unexpected"
	case errors.Is(err, core.ErrNotDeliverable):
		return "not_deliverable"
	case errors.Is(err, core.ErrFrameTooLarge), errors.Is(err, core.ErrPayloadTooLarge):
		return "oversized"
	case errors.Is(err, core.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, core.ErrStackClosed):
		return "closed"
	default:
		return "other"
	}
}
