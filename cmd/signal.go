package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running node",
	Long: `Stop a running node gracefully.

This command sends SIGTERM to the process recorded in the PID file.
The node closes its stack and link and exits cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalNode(pidFile, syscall.SIGTERM)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to node (pid %d)\n", pid)
		return nil
	},
}

// reloadCmd represents the reload command
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the configuration of a running node",
	Long: `Reload the configuration of a running node.

This command sends SIGHUP to the process recorded in the PID file.
Only logging settings take effect without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalNode(pidFile, syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGHUP to node (pid %d)\n", pid)
		return nil
	},
}

// readPIDFile returns the process ID stored in path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("node is not running or PID file is inaccessible: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

func signalNode(path string, sig syscall.Signal) (int, error) {
	pid, err := readPIDFile(path)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return pid, fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
	return pid, nil
}
