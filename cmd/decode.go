package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/floodstack/internal/wire"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode a captured transport packet",
	Long: `Decode a transport packet given as hex and print every layer.

Whitespace and colons between hex digits are ignored, so output copied from
a serial monitor can be pasted as is.

Examples:
  floodstack decode 41542b1f...
  floodstack decode --layers "41 54 2b 1f ..."`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecodeCommand(cmd, args)
	},
}

var decodeLayersOnly bool

func init() {
	decodeCmd.Flags().BoolVar(&decodeLayersOnly, "layers", false, "print only the decoded layer names")
}

func parseHex(args []string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "\t", "", "\n", "").Replace(strings.Join(args, ""))
	cleaned = strings.TrimPrefix(strings.ToLower(cleaned), "0x")
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return data, nil
}

func runDecodeCommand(cmd *cobra.Command, args []string) error {
	data, err := parseHex(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if decodeLayersOnly {
		types, err := wire.Layers(data)
		fmt.Fprintln(out, wire.LayerNames(types))
		if err != nil {
			return fmt.Errorf("decode stopped: %w", err)
		}
		return nil
	}

	fmt.Fprint(out, wire.Dump(data))
	return nil
}
