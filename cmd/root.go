// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	pidFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "floodstack",
	Short: "Floodstack - packet stack for low-bandwidth half-duplex radio links",
	Long: `Floodstack runs a three-layer packet stack over a serial radio link.

Layers:
  - Transport framer: "AT+" framing, chunked writes paced by the radio's acknowledgements
  - Fragmentation: large messages split into numbered frames and reassembled
  - Flood router: duplicate suppression, neighbor and route learning, hop-limited rebroadcast`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and FLOODSTACK_* env vars only when empty)")
	rootCmd.PersistentFlags().StringVarP(&pidFile, "pidfile", "p", "/var/run/floodstack.pid",
		"PID file path")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(simulateCmd)
}
