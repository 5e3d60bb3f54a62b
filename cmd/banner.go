package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/shaharia-lab/devproxy/internal/plugin"
	"github.com/shaharia-lab/devproxy/internal/proxy"
)

// newRenderer returns a lipgloss renderer for w. Colour is dropped when
// NO_COLOR is set or w is not a terminal.
func newRenderer(w io.Writer) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	if termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	return r
}

type bannerInfo struct {
	Version string
	URL     string
	LogFile string
	Rules   []proxy.Rule
	Plugins []plugin.Plugin
}

// printBanner writes the startup banner. It is the only output visible in
// the terminal during normal operation; structured logs go to the log file.
func printBanner(w io.Writer, info bannerInfo) {
	r := newRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	label := r.NewStyle().Foreground(lipgloss.Color("8")).Width(10)
	accent := r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	dim := r.NewStyle().Faint(true)

	arrow := accent.Render("➜")
	line := func(name, value string) {
		fmt.Fprintf(w, "  %s  %s%s\n", arrow, label.Render(name), value)
	}

	fmt.Fprintf(w, "\n  %s %s  ready\n\n", title.Render("DEVPROXY"), dim.Render(info.Version))
	line("Local:", accent.Render(info.URL))

	for _, rule := range info.Rules {
		var flags []string
		if rule.ChangeOrigin {
			flags = append(flags, "changeOrigin")
		}
		if rule.WS {
			flags = append(flags, "ws")
		}
		if rule.RewriteName != "" && rule.RewriteName != "identity" {
			flags = append(flags, rule.RewriteName)
		}
		value := fmt.Sprintf("%s → %s", rule.Prefix, rule.Target)
		if len(flags) > 0 {
			value += dim.Render(" (" + strings.Join(flags, ", ") + ")")
		}
		line("Proxy:", value)
	}

	if len(info.Plugins) > 0 {
		names := make([]string, 0, len(info.Plugins))
		for _, p := range info.Plugins {
			names = append(names, p.Name())
		}
		line("Plugins:", strings.Join(names, ", "))
	}
	if info.LogFile != "" {
		line("Logs:", dim.Render(info.LogFile))
	}
	fmt.Fprintln(w)
}
