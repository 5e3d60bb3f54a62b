package cmd

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/devproxy/internal/config"
	"github.com/shaharia-lab/devproxy/internal/server"
)

// NewRoutesCmd returns the "routes" subcommand that prints the routing table.
func NewRoutesCmd(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "routes [prefix]",
		Short: "Print the proxy routing table",
		Long:  "Load the dev config file and print its proxy rules in match order, or only the rule registered under prefix.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, _, err := loadDevConfig(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			routes := server.Routes(dev.Server.Proxy, nil)
			if len(args) == 1 {
				rule, ok := dev.Server.Proxy.Lookup(args[0])
				if !ok {
					return fmt.Errorf("no proxy rule registered under %q", args[0])
				}
				routes = slices.DeleteFunc(routes, func(v server.RouteView) bool { return v.Prefix != rule.Prefix })
			}
			if len(routes) == 0 {
				fmt.Fprintln(out, "no proxy rules configured")
				return nil
			}

			r := newRenderer(out)
			header := r.NewStyle().Bold(true).Padding(0, 1)
			cell := r.NewStyle().Padding(0, 1)

			t := table.New().
				Border(lipgloss.NormalBorder()).
				BorderStyle(r.NewStyle().Faint(true)).
				Headers("PREFIX", "TARGET", "CHANGE ORIGIN", "REWRITE", "WS").
				StyleFunc(func(row, _ int) lipgloss.Style {
					if row == table.HeaderRow {
						return header
					}
					return cell
				})
			for _, route := range routes {
				t.Row(route.Prefix, route.Target, strconv.FormatBool(route.ChangeOrigin), route.Rewrite, strconv.FormatBool(route.WebSocket))
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
}
