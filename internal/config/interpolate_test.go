package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("DEVPROXY_TEST_HOST", "localhost")
	t.Setenv("DEVPROXY_TEST_PORT", "8000")
	t.Setenv("DEVPROXY_TEST_LOOP", "${ENV:DEVPROXY_TEST_LOOP}")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{"no placeholders", "ws://localhost:8000/ws", "ws://localhost:8000/ws", ""},
		{"single", "http://${ENV:DEVPROXY_TEST_HOST}", "http://localhost", ""},
		{"multiple", "ws://${ENV:DEVPROXY_TEST_HOST}:${ENV:DEVPROXY_TEST_PORT}/ws", "ws://localhost:8000/ws", ""},
		{"unterminated is left alone", "http://${ENV:DEVPROXY_TEST_HOST", "http://${ENV:DEVPROXY_TEST_HOST", ""},
		{"value is not expanded again", "http://${ENV:DEVPROXY_TEST_LOOP}/x", "http://${ENV:DEVPROXY_TEST_LOOP}/x", ""},
		{"missing var", "http://${ENV:DEVPROXY_TEST_MISSING}", "", `"DEVPROXY_TEST_MISSING" is not set`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interpolateEnv(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpolateEnvMap(t *testing.T) {
	t.Setenv("DEVPROXY_TEST_TOKEN", "abc")

	out, err := interpolateEnvMap(map[string]string{
		"Authorization": "Bearer ${ENV:DEVPROXY_TEST_TOKEN}",
		"X-Static":      "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc", "X-Static": "yes"}, out)

	_, err = interpolateEnvMap(map[string]string{"X": "${ENV:DEVPROXY_TEST_MISSING}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "X"`)

	empty, err := interpolateEnvMap(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestConfigParseError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigParseError
		want string
	}{
		{"source and field", &ConfigParseError{Source: "devproxy.yaml", Field: "server.proxy", Message: "bad"}, "parsing devproxy.yaml: server.proxy: bad"},
		{"field only", &ConfigParseError{Field: "plugins[0]", Message: "bad"}, "parsing config: plugins[0]: bad"},
		{"source only", &ConfigParseError{Source: "devproxy.yaml", Message: "bad"}, "parsing devproxy.yaml: bad"},
		{"wrapped", &ConfigParseError{Message: "invalid YAML", Err: assert.AnError}, "parsing config: invalid YAML: " + assert.AnError.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	assert.ErrorIs(t, &ConfigParseError{Err: assert.AnError}, assert.AnError)
}
