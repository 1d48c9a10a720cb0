package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/floodstack/internal/core"
)

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("framer: %w", core.ErrMalformed), "malformed"},
		{core.ErrDuplicate, "duplicate"},
		{core.ErrLoopback, "loopback"},
		{core.ErrUnexpected, "unexpected"},
		{core.ErrNotDeliverable, "not_deliverable"},
		{core.ErrFrameTooLarge, "oversized"},
		{core.ErrPayloadTooLarge, "oversized"},
		{core.ErrQueueFull, "queue_full"},
		{core.ErrStackClosed, "closed"},
		{io.EOF, "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err))
	}
}

func TestNodeCounters(t *testing.T) {
	n := ForNode("metrics-test")
	t.Cleanup(n.Reset)

	n.Chunk(DirectionOut)
	n.Chunk(DirectionOut)
	n.Drop(LayerRouter, core.ErrDuplicate)
	n.Tables(3, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(ChunksTotal.WithLabelValues("metrics-test", DirectionOut)))
	assert.Equal(t, 1.0, testutil.ToFloat64(DropsTotal.WithLabelValues("metrics-test", LayerRouter, "duplicate")))
	assert.Equal(t, 3.0, testutil.ToFloat64(NeighborTableSize.WithLabelValues("metrics-test")))
	assert.Equal(t, 5.0, testutil.ToFloat64(RouteTableSize.WithLabelValues("metrics-test")))
}

func TestNilNodeIsNoop(t *testing.T) {
	var n *Node
	assert.NotPanics(t, func() {
		n.Chunk(DirectionIn)
		n.Drop(LayerFramer, core.ErrMalformed)
		n.Reassembling(true)
		n.Reset()
	})
	assert.Equal(t, "", n.Label())
}

func TestServer(t *testing.T) {
	ForNode("server-test").Packet(DirectionOut)

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "floodstack_router_packets_total")
}
