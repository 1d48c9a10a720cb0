package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/floodstack/internal/daemon"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a floodstack node in foreground",
	Long: `Run a floodstack node in foreground.

The node will:
  1. Load global configuration from config file
  2. Initialize logging and metrics
  3. Open the configured link (serial radio or UDP)
  4. Broadcast every non-empty line read from stdin (unless --no-input)
  5. Print every delivered message as "<source>: <payload>"
  6. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)

Examples:
  floodstack run -c /etc/floodstack/floodstack.yml
  FLOODSTACK_NODE_ADDRESS=42 floodstack run -c node.yml --no-input`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd)
	},
}

var noInput bool

func init() {
	runCmd.Flags().BoolVar(&noInput, "no-input", false, "do not broadcast lines read from stdin")
}

func runNode(cmd *cobra.Command) error {
	opts := daemon.Options{
		PIDFile: pidFile,
		Out:     cmd.OutOrStdout(),
	}
	if !noInput {
		opts.In = os.Stdin
	}

	// Create daemon instance
	d, err := daemon.New(configFile, opts)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	// Start all components
	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start node: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
