package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/devproxy/internal/config"
)

// NewCheckCmd returns the "check" subcommand that validates the dev config.
func NewCheckCmd(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the dev config file",
		Long:  "Load the dev config file, build the routing table and resolve plugins without starting the server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, plugins, err := loadDevConfig(cfg)
			if err != nil {
				return err
			}
			source := dev.Source
			if source == "" {
				source = "defaults (no config file)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d proxy rules, %d plugins)\n",
				source, dev.Server.Proxy.Len(), len(plugins))
			return nil
		},
	}
}
