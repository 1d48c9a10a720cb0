// Package main is the entry point for the floodstack radio node.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/floodstack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
