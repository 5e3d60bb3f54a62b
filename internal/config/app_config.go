package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// DefaultPort is the port the dev server listens on when neither a flag,
	// an environment variable nor the config file sets one.
	DefaultPort = 5173

	// DefaultHost is the interface the dev server binds by default.
	DefaultHost = "localhost"

	// DefaultConfigFile is looked up in the working directory.
	DefaultConfigFile = "devproxy.yaml"
)

// AppConfig holds process-level configuration loaded from environment variables.
// Values left at their zero value fall back to the dev config file.
type AppConfig struct {
	// Port overrides server.port from the config file.
	Port int `envconfig:"DEVPROXY_PORT"`

	// Host overrides server.host from the config file.
	Host string `envconfig:"DEVPROXY_HOST"`

	// ConfigFile is the path to the dev-server YAML file.
	ConfigFile string `envconfig:"DEVPROXY_CONFIG" default:"devproxy.yaml"`

	// Root overrides the static asset directory from the config file.
	Root string `envconfig:"DEVPROXY_ROOT"`

	// DataDir is the root data directory. Defaults to ~/.devproxy.
	DataDir string `envconfig:"DEVPROXY_DATA_DIR"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// HealthInterval is how often proxy targets are probed. Zero disables probing.
	HealthInterval time.Duration `envconfig:"DEVPROXY_HEALTH_INTERVAL" default:"10s"`

	// OTLPEndpoint enables trace export over OTLP/gRPC when set (host:port).
	OTLPEndpoint string `envconfig:"DEVPROXY_OTLP_ENDPOINT"`
}

// Load reads AppConfig from environment variables using envconfig.
// DataDir defaults to ~/.devproxy if not set.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".devproxy")
	}
	return &c, nil
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDir returns the path to the log directory (~/.devproxy/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFileIsDefault reports whether ConfigFile was left at its default,
// in which case a missing file is not an error.
func (c *AppConfig) ConfigFileIsDefault() bool {
	return c.ConfigFile == "" || c.ConfigFile == DefaultConfigFile
}

// ListenAddress resolves the host and port to bind from env overrides, the
// dev config file and the built-in defaults, in that order.
func (c *AppConfig) ListenAddress(dev *DevConfig) (string, int) {
	host, port := DefaultHost, DefaultPort
	if dev != nil {
		if dev.Server.Host != "" {
			host = dev.Server.Host
		}
		if dev.Server.Port > 0 {
			port = dev.Server.Port
		}
	}
	if c.Host != "" {
		host = c.Host
	}
	if c.Port > 0 {
		port = c.Port
	}
	return host, port
}

// AssetRoot returns the static asset directory, preferring the env/flag
// override over the config file. Empty means "use the embedded assets".
func (c *AppConfig) AssetRoot(dev *DevConfig) string {
	if c.Root != "" {
		return c.Root
	}
	if dev != nil {
		return dev.Root
	}
	return ""
}
