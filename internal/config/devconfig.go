package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaharia-lab/devproxy/internal/proxy"
)

// DevConfig is the parsed dev-server configuration file. It is built once
// at startup and never mutated afterwards.
type DevConfig struct {
	// Source is the path the configuration was read from ("" for defaults).
	Source  string
	Root    string
	Plugins []PluginDescriptor
	Server  ServerConfig
}

// ServerConfig mirrors the server block of the config file.
type ServerConfig struct {
	Host       string
	Port       int
	StrictPort bool
	// Open launches the browser once the server is ready.
	Open    bool
	Headers map[string]string
	// Proxy is the sealed routing table built from server.proxy.
	Proxy *proxy.Table
}

// PluginDescriptor names a compiled-in plugin. In YAML it is either a bare
// name ("vue" or "vue()") or a mapping with name, version and options.
type PluginDescriptor struct {
	Name string
	// Version is a semver constraint the plugin version must satisfy.
	Version string
	Options yaml.Node
}

// UnmarshalYAML accepts both the scalar and the mapping plugin forms.
func (d *PluginDescriptor) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		d.Name = strings.TrimSuffix(strings.TrimSpace(node.Value), "()")
		return nil
	case yaml.MappingNode:
		var raw struct {
			Name    string    `yaml:"name"`
			Version string    `yaml:"version"`
			Options yaml.Node `yaml:"options"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		d.Name = strings.TrimSuffix(strings.TrimSpace(raw.Name), "()")
		d.Version = strings.TrimSpace(raw.Version)
		d.Options = raw.Options
		return nil
	default:
		return fmt.Errorf("line %d: plugin must be a name or a mapping", node.Line)
	}
}

// RewriteConfig is the declarative form of a path rewrite. YAML accepts a
// strategy name ("identity", "strip-prefix") or a {from, to} mapping that
// replaces regular expression matches.
type RewriteConfig struct {
	Strategy string
	From     string
	To       string
}

const (
	rewriteIdentity    = "identity"
	rewriteStripPrefix = "strip-prefix"
	rewriteReplace     = "replace"
)

// UnmarshalYAML accepts both the scalar and the mapping rewrite forms.
func (r *RewriteConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		r.Strategy = strings.TrimSpace(node.Value)
		return nil
	case yaml.MappingNode:
		var raw struct {
			From string `yaml:"from"`
			To   string `yaml:"to"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		r.Strategy = rewriteReplace
		r.From = raw.From
		r.To = raw.To
		return nil
	default:
		return fmt.Errorf("line %d: rewrite must be a strategy name or a {from, to} mapping", node.Line)
	}
}

// build turns the declarative rewrite into a RewriteFunc for prefix.
func (r *RewriteConfig) build(prefix string) (proxy.RewriteFunc, string, error) {
	if r == nil {
		return proxy.Identity, rewriteIdentity, nil
	}
	switch r.Strategy {
	case "", rewriteIdentity:
		return proxy.Identity, rewriteIdentity, nil
	case rewriteStripPrefix, "stripPrefix":
		if strings.HasPrefix(prefix, "^") {
			re, err := regexp.Compile(prefix)
			if err != nil {
				return nil, "", err
			}
			return proxy.StripMatch(re), rewriteStripPrefix, nil
		}
		return proxy.StripPrefix(prefix), rewriteStripPrefix, nil
	case rewriteReplace:
		if r.From == "" {
			return nil, "", errors.New("rewrite.from is required")
		}
		re, err := regexp.Compile(r.From)
		if err != nil {
			return nil, "", fmt.Errorf("rewrite.from: %w", err)
		}
		return proxy.Replace(re, r.To), fmt.Sprintf("replace %s -> %s", r.From, r.To), nil
	default:
		return nil, "", fmt.Errorf("unknown rewrite strategy %q (must be identity, strip-prefix or a {from, to} mapping)", r.Strategy)
	}
}

type rawDevConfig struct {
	Root    string             `yaml:"root"`
	Plugins []PluginDescriptor `yaml:"plugins"`
	Server  struct {
		Host       string            `yaml:"host"`
		Port       int               `yaml:"port"`
		StrictPort bool              `yaml:"strictPort"`
		Open       bool              `yaml:"open"`
		Headers    map[string]string `yaml:"headers"`
		Proxy      yaml.Node         `yaml:"proxy"`
	} `yaml:"server"`
}

type rawProxyRule struct {
	Target       yaml.Node         `yaml:"target"`
	ChangeOrigin bool              `yaml:"changeOrigin"`
	Rewrite      *RewriteConfig    `yaml:"rewrite"`
	WS           *bool             `yaml:"ws"`
	Secure       *bool             `yaml:"secure"`
	Headers      map[string]string `yaml:"headers"`
	Timeout      string            `yaml:"timeout"`
	PrependPath  *bool             `yaml:"prependPath"`
}

var knownRuleOptions = map[string]struct{}{
	"target":       {},
	"changeOrigin": {},
	"rewrite":      {},
	"ws":           {},
	"secure":       {},
	"headers":      {},
	"timeout":      {},
	"prependPath":  {},
}

// DefaultDevConfig returns the configuration used when no file exists: no
// plugins and an empty, sealed routing table.
func DefaultDevConfig() *DevConfig {
	table := proxy.NewTable()
	table.Seal()
	return &DevConfig{Server: ServerConfig{Proxy: table}}
}

// LoadDevConfig reads and parses the dev config file at path. A missing file
// is reported with an error wrapping fs.ErrNotExist.
func LoadDevConfig(path string) (*DevConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("reading dev config %q: %w", path, err)
	}
	return ParseDevConfig(data, path)
}

// ParseDevConfig parses data as a dev config file. Structural problems are
// returned as *ConfigParseError and bad proxy targets as
// *proxy.InvalidTargetError.
func ParseDevConfig(data []byte, source string) (*DevConfig, error) {
	var raw rawDevConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigParseError{Source: source, Message: "invalid YAML", Err: err}
	}

	for i, p := range raw.Plugins {
		if p.Name == "" {
			return nil, &ConfigParseError{Source: source, Field: fmt.Sprintf("plugins[%d]", i), Message: "plugin name is required"}
		}
	}

	if raw.Server.Port < 0 || raw.Server.Port > 65535 {
		return nil, &ConfigParseError{Source: source, Field: "server.port", Message: fmt.Sprintf("port %d out of range", raw.Server.Port)}
	}

	headers, err := interpolateEnvMap(raw.Server.Headers)
	if err != nil {
		return nil, &ConfigParseError{Source: source, Field: "server.headers", Err: err}
	}

	table, err := parseProxyTable(&raw.Server.Proxy, source)
	if err != nil {
		return nil, err
	}
	table.Seal()

	return &DevConfig{
		Source:  source,
		Root:    strings.TrimSpace(raw.Root),
		Plugins: raw.Plugins,
		Server: ServerConfig{
			Host:       strings.TrimSpace(raw.Server.Host),
			Port:       raw.Server.Port,
			StrictPort: raw.Server.StrictPort,
			Open:       raw.Server.Open,
			Headers:    headers,
			Proxy:      table,
		},
	}, nil
}

// parseProxyTable walks server.proxy in document order so that rule
// precedence follows the file.
func parseProxyTable(node *yaml.Node, source string) (*proxy.Table, error) {
	table := proxy.NewTable()

	switch node.Kind {
	case 0:
		return table, nil
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return table, nil
		}
		return nil, &ConfigParseError{Source: source, Field: "server.proxy", Message: "must be a mapping of path prefix to rule"}
	case yaml.MappingNode:
	default:
		return nil, &ConfigParseError{Source: source, Field: "server.proxy", Message: "must be a mapping of path prefix to rule"}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		prefix := keyNode.Value
		if keyNode.Kind != yaml.ScalarNode || keyNode.ShortTag() != "!!str" || strings.TrimSpace(prefix) == "" {
			return nil, &ConfigParseError{
				Source:  source,
				Field:   "server.proxy",
				Message: fmt.Sprintf("line %d: proxy prefix must be a non-empty string", keyNode.Line),
			}
		}
		field := "server.proxy." + prefix

		spec, err := parseRuleSpec(prefix, valNode)
		if err != nil {
			var parseErr *ConfigParseError
			if errors.As(err, &parseErr) {
				parseErr.Source = source
				if parseErr.Field == "" {
					parseErr.Field = field
				} else {
					parseErr.Field = field + "." + parseErr.Field
				}
				return nil, parseErr
			}
			return nil, &ConfigParseError{Source: source, Field: field, Err: err}
		}

		rule, err := proxy.BuildRule(spec)
		if err != nil {
			var targetErr *proxy.InvalidTargetError
			if errors.As(err, &targetErr) {
				targetErr.Prefix = prefix
				return nil, fmt.Errorf("loading %s: %w", displaySource(source), targetErr)
			}
			return nil, &ConfigParseError{Source: source, Field: field, Err: err}
		}

		if err := table.Register(prefix, rule); err != nil {
			return nil, &ConfigParseError{Source: source, Field: field, Err: err}
		}
	}
	return table, nil
}

func parseRuleSpec(prefix string, node *yaml.Node) (proxy.RuleSpec, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		// Shorthand: '/foo': 'http://localhost:4567'
		target, err := targetString(node)
		if err != nil {
			return proxy.RuleSpec{}, err
		}
		return proxy.RuleSpec{Target: target, Rewrite: proxy.Identity, RewriteName: rewriteIdentity}, nil
	case yaml.MappingNode:
	default:
		return proxy.RuleSpec{}, &ConfigParseError{Message: "rule must be a target string or a mapping"}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, ok := knownRuleOptions[key]; !ok {
			return proxy.RuleSpec{}, &ConfigParseError{Field: key, Message: "unknown proxy option"}
		}
	}

	var raw rawProxyRule
	if err := node.Decode(&raw); err != nil {
		return proxy.RuleSpec{}, &ConfigParseError{Err: err}
	}

	if raw.Target.Kind == 0 {
		return proxy.RuleSpec{}, &ConfigParseError{Field: "target", Message: "target is required"}
	}
	target, err := targetString(&raw.Target)
	if err != nil {
		return proxy.RuleSpec{}, err
	}

	rewrite, rewriteName, err := raw.Rewrite.build(prefix)
	if err != nil {
		return proxy.RuleSpec{}, &ConfigParseError{Field: "rewrite", Err: err}
	}

	headers, err := interpolateEnvMap(raw.Headers)
	if err != nil {
		return proxy.RuleSpec{}, &ConfigParseError{Field: "headers", Err: err}
	}

	timeout, err := parseTimeout(raw.Timeout)
	if err != nil {
		return proxy.RuleSpec{}, &ConfigParseError{Field: "timeout", Err: err}
	}

	return proxy.RuleSpec{
		Target:       target,
		ChangeOrigin: raw.ChangeOrigin,
		Rewrite:      rewrite,
		RewriteName:  rewriteName,
		WS:           raw.WS,
		Secure:       raw.Secure,
		Headers:      headers,
		Timeout:      timeout,
		PrependPath:  raw.PrependPath,
	}, nil
}

// targetString extracts a target URI from a scalar node, rejecting
// non-string scalars such as numbers, booleans and null.
func targetString(node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" {
		return "", &ConfigParseError{Field: "target", Message: fmt.Sprintf("line %d: target must be a string", node.Line)}
	}
	target, err := interpolateEnv(node.Value)
	if err != nil {
		return "", &ConfigParseError{Field: "target", Err: err}
	}
	return target, nil
}

// parseTimeout accepts a Go duration ("5s") or a bare number of milliseconds.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.Atoi(s); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("timeout must not be negative")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative")
	}
	return d, nil
}

func displaySource(source string) string {
	if source == "" {
		return "config"
	}
	return source
}
