package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the built-in tool schemas as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := buildRegistry(globalCfg, logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(registry.Schemas())
		},
	}
}
