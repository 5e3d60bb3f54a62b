package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &AppConfig{LogLevel: tt.logLevel}
			assert.Equal(t, tt.want, c.SlogLevel())
		})
	}
}

func TestAppConfig_LogDir(t *testing.T) {
	c := &AppConfig{DataDir: "/data"}
	assert.Equal(t, "/data/logs", c.LogDir())
}

func TestLoad(t *testing.T) {
	t.Setenv("DEVPROXY_PORT", "9090")
	t.Setenv("DEVPROXY_HOST", "0.0.0.0")
	t.Setenv("DEVPROXY_DATA_DIR", "/tmp/test-devproxy")
	t.Setenv("DEVPROXY_CONFIG", "")
	t.Setenv("DEVPROXY_ROOT", "")
	t.Setenv("DEVPROXY_HEALTH_INTERVAL", "30s")
	t.Setenv("DEVPROXY_OTLP_ENDPOINT", "")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "/tmp/test-devproxy", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"DEVPROXY_PORT", "DEVPROXY_HOST", "DEVPROXY_CONFIG", "DEVPROXY_ROOT",
		"DEVPROXY_DATA_DIR", "DEVPROXY_HEALTH_INTERVAL", "DEVPROXY_OTLP_ENDPOINT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Zero(t, cfg.Port)
	assert.Equal(t, DefaultConfigFile, cfg.ConfigFile)
	assert.True(t, cfg.ConfigFileIsDefault())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.HealthInterval)
	assert.Equal(t, home+"/.devproxy", cfg.DataDir)
}

func TestAppConfig_ListenAddress(t *testing.T) {
	fileCfg := &DevConfig{Server: ServerConfig{Host: "127.0.0.1", Port: 3000}}

	tests := []struct {
		name     string
		app      AppConfig
		dev      *DevConfig
		wantHost string
		wantPort int
	}{
		{"defaults", AppConfig{}, nil, DefaultHost, DefaultPort},
		{"file values", AppConfig{}, fileCfg, "127.0.0.1", 3000},
		{"env overrides file", AppConfig{Host: "0.0.0.0", Port: 8080}, fileCfg, "0.0.0.0", 8080},
		{"partial override", AppConfig{Port: 8080}, fileCfg, "127.0.0.1", 8080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := tt.app.ListenAddress(tt.dev)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestAppConfig_AssetRoot(t *testing.T) {
	dev := &DevConfig{Root: "web/dist"}

	assert.Equal(t, "web/dist", (&AppConfig{}).AssetRoot(dev))
	assert.Equal(t, "public", (&AppConfig{Root: "public"}).AssetRoot(dev))
	assert.Empty(t, (&AppConfig{}).AssetRoot(nil))
}
