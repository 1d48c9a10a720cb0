// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksTotal counts transport chunks by direction
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodstack_framer_chunks_total",
			Help: "Total number of transport chunks handled",
		},
		[]string{"node", "direction"},
	)

	// FramesTotal counts complete transport frames by direction
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodstack_framer_frames_total",
			Help: "Total number of transport frames sent or reassembled",
		},
		[]string{"node", "direction"},
	)

	// PacingWaitSeconds measures how long the framer waited for chunk acceptance
	PacingWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodstack_framer_pacing_wait_seconds",
			Help:    "Time spent waiting for the link to accept a chunk",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"node"},
	)

	// StreamsTotal counts fragmentation streams by direction
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodstack_fragment_streams_total",
			Help: "Total number of message streams sent or delivered",
		},
		[]string{"node", "direction"},
	)

	// TruncatedTotal counts outbound messages cut to the max stream size
	TruncatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodstack_fragment_truncated_total",
			Help: "Total number of outbound messages truncated",
		},
		[]string{"node"},
	)

	// ReassemblyActive is 1 while a multi-frame stream is being reassembled
	ReassemblyActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "floodstack_fragment_reassembly_active",
			Help: "Whether a stream reassembly is in flight",
		},
		[]string{"node"},
	)

	// PacketsTotal counts router packets by direction (sent, received, delivered, forwarded)
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodstack_router_packets_total",
			Help: "Total number of router packets by direction",
		},
		[]string{"node", "direction"},
	)

	// DropsTotal counts discarded input by layer and reason
	DropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodstack_drops_total",
			Help: "Total number of discarded inputs",
		},
		[]string{"node", "layer", "reason"},
	)

	// TimeoutsTotal counts reassembly timeouts by layer
	TimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodstack_timeouts_total",
			Help: "Total number of reassembly timeouts",
		},
		[]string{"node", "layer"},
	)

	// NeighborTableSize tracks the number of known neighbors
	NeighborTableSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "floodstack_neighbor_table_size",
			Help: "Current number of neighbors",
		},
		[]string{"node"},
	)

	// RouteTableSize tracks the number of route candidates
	RouteTableSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "floodstack_route_table_size",
			Help: "Current number of route entries",
		},
		[]string{"node"},
	)

	// ForwardQueueDepth tracks packets waiting to be re-broadcast
	ForwardQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "floodstack_forward_queue_depth",
			Help: "Current number of packets queued for forwarding",
		},
		[]string{"node"},
	)
)

// Directions and layers used as label values.
const (
	DirectionIn        = "in"
	DirectionOut       = "out"
	DirectionDelivered = "delivered"
	DirectionForwarded = "forwarded"

	LayerFramer   = "framer"
	LayerFragment = "fragment"
	LayerRouter   = "router"
	LayerStack    = "stack"
)
