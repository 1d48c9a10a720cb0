package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/floodstack/internal/core"
	"firestige.xyz/floodstack/internal/link"
	"firestige.xyz/floodstack/internal/log"
	"firestige.xyz/floodstack/internal/stack"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Flood a message through an in-memory line of nodes",
	Long: `Build a line of nodes 1-2-...-N on an in-memory radio medium, broadcast one
message from node 1, and report which nodes delivered it together with
their neighbor and route tables.

Examples:
  floodstack simulate
  floodstack simulate --nodes 8 --size 1000 --loss 0.05`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulateCommand(cmd.Context(), cmd.OutOrStdout(), simulateOpts)
	},
}

type simulateOptions struct {
	Nodes    int
	MaxHops  int
	Size     int
	Message  string
	FrameGap time.Duration
	Loss     float64
	Wait     time.Duration
	LogLevel string
}

var simulateOpts = simulateOptions{}

func init() {
	f := simulateCmd.Flags()
	f.IntVarP(&simulateOpts.Nodes, "nodes", "n", 5, "number of nodes in the line")
	f.IntVar(&simulateOpts.MaxHops, "max-hops", 3, "hop limit of the flood router")
	f.IntVar(&simulateOpts.Size, "size", 0, "send a generated message of this many bytes instead of --message")
	f.StringVarP(&simulateOpts.Message, "message", "m", "hello flood", "message broadcast by node 1")
	f.DurationVar(&simulateOpts.FrameGap, "frame-gap", 30*time.Millisecond, "pause between frames of one message")
	f.Float64Var(&simulateOpts.Loss, "loss", 0, "probability that the medium drops a chunk")
	f.DurationVar(&simulateOpts.Wait, "wait", 5*time.Second, "how long to wait for deliveries")
	f.StringVar(&simulateOpts.LogLevel, "log-level", "warn", "log level of the simulated nodes")
}

type simNode struct {
	st *stack.Stack

	mu        sync.Mutex
	delivered [][]byte
}

func (n *simNode) OnMessage(src core.Address, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, payload)
}

func (n *simNode) deliveries() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.delivered...)
}

func simulationPayload(opts simulateOptions) []byte {
	if opts.Size <= 0 {
		return []byte(opts.Message)
	}
	payload := make([]byte, opts.Size)
	for i := range payload {
		payload[i] = 'a' + byte(i%26)
	}
	return payload
}

func runSimulateCommand(ctx context.Context, out io.Writer, opts simulateOptions) error {
	if opts.Nodes < 2 {
		return fmt.Errorf("--nodes must be at least 2, got %d", opts.Nodes)
	}
	if opts.Loss < 0 || opts.Loss >= 1 {
		return fmt.Errorf("--loss must be in [0, 1), got %v", opts.Loss)
	}
	if err := log.Init(&log.LoggerConfig{Level: opts.LogLevel}); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	medium := link.NewMedium()
	defer medium.Close()
	medium.SetLoss(opts.Loss)

	addrs := make([]core.Address, opts.Nodes)
	for i := range addrs {
		addrs[i] = core.Address(i + 1)
	}
	medium.Line(addrs...)

	nodes := make([]*simNode, len(addrs))
	var wg sync.WaitGroup
	for i, addr := range addrs {
		cfg := stack.DefaultConfig(addr)
		cfg.MaxHops = opts.MaxHops
		cfg.FrameGap = opts.FrameGap

		port := medium.Port(addr)
		n := &simNode{}
		st, err := stack.New(cfg, port, n)
		if err != nil {
			return err
		}
		n.st = st
		port.Bind(st)
		nodes[i] = n

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Run(ctx)
		}()
	}
	defer func() {
		for _, n := range nodes {
			n.st.Close()
		}
		wg.Wait()
	}()

	payload := simulationPayload(opts)
	sizes := nodes[0].st.Sizes()
	frames := (len(payload) + sizes.MaxFramePayload - 1) / sizes.MaxFramePayload
	fmt.Fprintf(out, "line of %d nodes, max hops %d, message %d bytes in %d frame(s), loss %.2f\n",
		opts.Nodes, opts.MaxHops, len(payload), frames, opts.Loss)

	start := time.Now()
	if err := nodes[0].st.Send(ctx, core.Broadcast, payload); err != nil {
		return err
	}

	// Node k+1 sits k hops from node 1 and hears the flood while k <= max hops.
	reachable := min(opts.Nodes-1, max(opts.MaxHops, 1))
	deadline := time.NewTimer(opts.Wait)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		got := 0
		for _, n := range nodes[1:] {
			if len(n.deliveries()) > 0 {
				got++
			}
		}
		if got >= reachable {
			// Let stray forwards settle so the tables are complete.
			time.Sleep(4 * opts.FrameGap)
			break
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			break wait
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	elapsed := time.Since(start)

	fmt.Fprintln(out)
	for i, n := range nodes {
		status := "sender"
		if i > 0 {
			status = deliveryStatus(n.deliveries(), payload)
		}
		fmt.Fprintf(out, "node %d: %s\n", addrs[i], status)
		printTables(out, n.st)
		stats := medium.Port(addrs[i]).Stats()
		fmt.Fprintf(out, "  chunks: sent=%d delivered=%d lost=%d overflow=%d\n",
			stats.Sent, stats.Delivered, stats.Lost, stats.Overflow)
	}
	fmt.Fprintf(out, "\nfinished in %s\n", elapsed.Round(time.Millisecond))
	return nil
}

func deliveryStatus(got [][]byte, want []byte) string {
	switch {
	case len(got) == 0:
		return "not delivered"
	case len(got) > 1:
		return fmt.Sprintf("delivered %d times", len(got))
	case !bytes.Equal(got[0], want):
		return fmt.Sprintf("delivered corrupted (%d bytes)", len(got[0]))
	default:
		return "delivered"
	}
}

func printTables(out io.Writer, st *stack.Stack) {
	neighbors := st.Neighbors()
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Address < neighbors[j].Address })
	for _, nb := range neighbors {
		fmt.Fprintf(out, "  neighbor %s\n", nb.Address)
	}

	routes := st.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Destination != routes[j].Destination {
			return routes[i].Destination < routes[j].Destination
		}
		return routes[i].NextHop < routes[j].NextHop
	})
	for _, r := range routes {
		fmt.Fprintf(out, "  route %s via %s (%d hops)\n", r.Destination, r.NextHop, r.Hops)
	}
}
