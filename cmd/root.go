package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/devproxy/internal/config"
)

// Execute loads process configuration and runs the root command.
func Execute() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := NewRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree around cfg.
func NewRootCmd(cfg *config.AppConfig) *cobra.Command {
	root := &cobra.Command{
		Use:   "devproxy",
		Short: "Front-end dev server with path-prefix proxying",
		Long: `devproxy serves a single-page front-end and forwards requests whose path
matches a configured prefix to a backend target, as declared in devproxy.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cfg.ConfigFile, "config", "c", cfg.ConfigFile,
		"Path to the dev config file (overrides DEVPROXY_CONFIG)")

	root.AddCommand(NewServeCmd(cfg))
	root.AddCommand(NewRoutesCmd(cfg))
	root.AddCommand(NewCheckCmd(cfg))
	root.AddCommand(NewVersionCmd())
	root.AddCommand(NewUpdateCmd())
	return root
}
