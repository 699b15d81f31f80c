package main

import (
	"fmt"

	"github.com/findings-relay/findings-relay/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration with tokens redacted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return configError(err)
		}
		attrs := cfg.Redacted()
		for i := 0; i+1 < len(attrs); i += 2 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", attrs[i], attrs[i+1])
		}
		return nil
	},
}
