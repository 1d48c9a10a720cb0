package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/floodstack/internal/config"
	"firestige.xyz/floodstack/internal/core"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a node configuration file",
	Long: `Validate a node configuration file without opening the link.

Defaults and FLOODSTACK_* environment overrides are applied before validation.
With --print the effective configuration is written as YAML.

Examples:
  floodstack validate -c node.yml
  floodstack validate -c node.yml --print`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidateCommand(cmd)
	},
}

var validatePrint bool

func init() {
	validateCmd.Flags().BoolVar(&validatePrint, "print", false, "print the effective configuration as YAML")
}

func runValidateCommand(cmd *cobra.Command) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	out := cmd.OutOrStdout()
	if cfg.Node.Address == "" {
		fmt.Fprintf(out, "VALID: %s link, no node.address set (required by run)\n", cfg.Link.Type)
	} else {
		sc, err := cfg.StackConfig()
		if err != nil {
			return fmt.Errorf("INVALID: %w", err)
		}
		sizes := core.DeriveSizes(sc.MTU)
		fmt.Fprintf(out, "VALID: node %s on %s link, mtu %d, frame payload %d, max message %d, max hops %d\n",
			sc.Local, cfg.Link.Type, sc.MTU, sizes.MaxFramePayload, sizes.MaxStream, sc.MaxHops)
	}

	if !validatePrint {
		return nil
	}
	data, err := yaml.Marshal(map[string]*config.GlobalConfig{"floodstack": cfg})
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = out.Write(data)
	return err
}
