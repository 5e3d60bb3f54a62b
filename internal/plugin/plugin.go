// Package plugin holds the closed set of framework-integration plugins that
// a dev config file may enable. Plugins are compiled in; the config file
// only selects them by name and optionally constrains their version.
package plugin

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/shaharia-lab/devproxy/internal/config"
)

// Host is the part of the dev server a plugin may configure.
type Host interface {
	// Use appends middleware that runs in front of proxying and static serving.
	Use(middlewares ...func(http.Handler) http.Handler)
	// Handle mounts h on an exact path.
	Handle(pattern string, h http.Handler)
	// EnableHistoryFallback serves index for static paths that do not exist.
	EnableHistoryFallback(index string)
	// AddMIMEType registers a Content-Type for a file extension such as ".vue".
	AddMIMEType(ext, typ string)
	// Gatherer exposes the server's metrics registry.
	Gatherer() prometheus.Gatherer
}

// Plugin is a configured, ready to install plugin.
type Plugin interface {
	Name() string
	Version() *semver.Version
	Setup(host Host) error
}

// Factory builds a plugin from the options node of its descriptor. options
// is never nil; its Kind is zero when the descriptor had no options.
type Factory func(options *yaml.Node) (Plugin, error)

type entry struct {
	version *semver.Version
	factory Factory
}

// Registry maps plugin names to their factories.
type Registry struct {
	entries map[string]entry
}

// NewRegistry returns a registry holding the built-in plugins.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]entry)}
	r.Register(VueName, VueVersion, newVue)
	r.Register(CORSName, CORSVersion, newCORS)
	r.Register(MetricsName, MetricsVersion, newMetrics)
	return r
}

// Register adds a factory under name. version must be valid semver; it
// panics otherwise since registrations are static.
func (r *Registry) Register(name, version string, f Factory) {
	r.entries[name] = entry{version: semver.MustParse(version), factory: f}
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve instantiates the plugins listed in cfg, in order. Unknown names,
// duplicates, unsatisfied version constraints and bad options are reported
// as *config.ConfigParseError.
func (r *Registry) Resolve(cfg *config.DevConfig) ([]Plugin, error) {
	plugins := make([]Plugin, 0, len(cfg.Plugins))
	seen := make(map[string]bool, len(cfg.Plugins))

	for i, desc := range cfg.Plugins {
		field := fmt.Sprintf("plugins[%d]", i)
		fail := func(msg string, err error) error {
			return &config.ConfigParseError{Source: cfg.Source, Field: field, Message: msg, Err: err}
		}

		e, ok := r.entries[desc.Name]
		if !ok {
			return nil, fail(fmt.Sprintf("unknown plugin %q (available: %v)", desc.Name, r.Names()), nil)
		}
		if seen[desc.Name] {
			return nil, fail(fmt.Sprintf("plugin %q listed more than once", desc.Name), nil)
		}
		seen[desc.Name] = true

		if desc.Version != "" {
			constraint, err := semver.NewConstraint(desc.Version)
			if err != nil {
				return nil, fail(fmt.Sprintf("invalid version constraint %q", desc.Version), err)
			}
			if !constraint.Check(e.version) {
				return nil, fail(fmt.Sprintf("plugin %q version %s does not satisfy %q", desc.Name, e.version, desc.Version), nil)
			}
		}

		opts := desc.Options
		p, err := e.factory(&opts)
		if err != nil {
			return nil, fail(fmt.Sprintf("plugin %q options", desc.Name), err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// Install runs Setup for every plugin in order.
func Install(host Host, plugins []Plugin) error {
	for _, p := range plugins {
		if err := p.Setup(host); err != nil {
			return fmt.Errorf("installing plugin %q: %w", p.Name(), err)
		}
	}
	return nil
}

// decodeOptions decodes a plugin options node into out, leaving out
// untouched when no options were given.
func decodeOptions(node *yaml.Node, out any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: options must be a mapping", node.Line)
	}
	return node.Decode(out)
}
