package proxy_test

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/devproxy/internal/proxy"
)

func boolPtr(b bool) *bool { return &b }

func TestBuildRule_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		target string
		wantWS bool
	}{
		{"http target", "http://localhost:8000", false},
		{"https target", "https://api.example.com", false},
		{"ws target", "ws://localhost:8000/ws/robot/status", true},
		{"wss target", "wss://stream.example.com/feed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := proxy.BuildRule(proxy.RuleSpec{Target: tt.target})
			require.NoError(t, err)
			assert.Equal(t, tt.wantWS, rule.WS)
			assert.True(t, rule.Secure)
			assert.True(t, rule.PrependPath)
			assert.False(t, rule.ChangeOrigin)
			assert.Equal(t, "identity", rule.RewriteName)
			assert.Equal(t, "/x/y", rule.Rewrite("/x/y"))
		})
	}
}

func TestBuildRule_ExplicitOptions(t *testing.T) {
	rule, err := proxy.BuildRule(proxy.RuleSpec{
		Target:       "ws://localhost:8000",
		ChangeOrigin: true,
		WS:           boolPtr(false),
		Secure:       boolPtr(false),
		PrependPath:  boolPtr(false),
		Timeout:      3 * time.Second,
		Headers:      map[string]string{"X-Dev": "1"},
	})
	require.NoError(t, err)
	assert.True(t, rule.ChangeOrigin)
	assert.False(t, rule.WS)
	assert.False(t, rule.Secure)
	assert.False(t, rule.PrependPath)
	assert.Equal(t, 3*time.Second, rule.Timeout)
	assert.Equal(t, "1", rule.Headers["X-Dev"])
}

func TestBuildRule_InvalidTarget(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"relative", "/api"},
		{"missing host", "http://"},
		{"unsupported scheme", "ftp://files.example.com"},
		{"unparseable", "http://[::1"},
		{"host without scheme", "localhost:8000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := proxy.BuildRule(proxy.RuleSpec{Target: tt.target})
			require.Error(t, err)
			var targetErr *proxy.InvalidTargetError
			assert.True(t, errors.As(err, &targetErr), "expected *InvalidTargetError, got %T", err)
		})
	}
}

func TestParseTarget_NormalizesScheme(t *testing.T) {
	u, err := proxy.ParseTarget("  WS://LocalHost:8000/ws  ")
	require.NoError(t, err)
	assert.Equal(t, "ws", u.Scheme)
	assert.Equal(t, "LocalHost:8000", u.Host)
	assert.Equal(t, "/ws", u.Path)
}

func TestRule_UpstreamURL(t *testing.T) {
	tests := []struct {
		name      string
		spec      proxy.RuleSpec
		in        string
		websocket bool
		want      string
	}{
		{
			name: "ws target forwarded over http",
			spec: proxy.RuleSpec{Target: "ws://localhost:8000/ws/robot/status"},
			in:   "/api/v1/robot",
			want: "http://localhost:8000/ws/robot/status/api/v1/robot",
		},
		{
			name:      "ws target upgraded over ws",
			spec:      proxy.RuleSpec{Target: "ws://localhost:8000/ws/robot/status"},
			in:        "/api/v1/robot",
			websocket: true,
			want:      "ws://localhost:8000/ws/robot/status/api/v1/robot",
		},
		{
			name:      "https target upgraded over wss",
			spec:      proxy.RuleSpec{Target: "https://api.example.com"},
			in:        "/socket",
			websocket: true,
			want:      "wss://api.example.com/socket",
		},
		{
			name: "wss target forwarded over https",
			spec: proxy.RuleSpec{Target: "wss://api.example.com/"},
			in:   "/api/users",
			want: "https://api.example.com/api/users",
		},
		{
			name: "bare host target",
			spec: proxy.RuleSpec{Target: "http://localhost:3000"},
			in:   "/api/users",
			want: "http://localhost:3000/api/users",
		},
		{
			name: "query preserved",
			spec: proxy.RuleSpec{Target: "http://localhost:3000"},
			in:   "/api/users?page=2",
			want: "http://localhost:3000/api/users?page=2",
		},
		{
			name: "target query merged",
			spec: proxy.RuleSpec{Target: "http://localhost:3000/?token=abc"},
			in:   "/api?page=2",
			want: "http://localhost:3000/api?token=abc&page=2",
		},
		{
			name: "prepend path disabled",
			spec: proxy.RuleSpec{Target: "http://localhost:3000/base", PrependPath: boolPtr(false)},
			in:   "/api/users",
			want: "http://localhost:3000/api/users",
		},
		{
			name: "strip prefix rewrite",
			spec: proxy.RuleSpec{Target: "http://localhost:3000/v2", Rewrite: proxy.StripPrefix("/api")},
			in:   "/api/users",
			want: "http://localhost:3000/v2/users",
		},
		{
			name: "encoded slash kept",
			spec: proxy.RuleSpec{Target: "http://localhost:3000"},
			in:   "/api/files/a%2Fb",
			want: "http://localhost:3000/api/files/a%2Fb",
		},
		{
			name: "encoded target path joined",
			spec: proxy.RuleSpec{Target: "http://localhost:3000/base%20dir", Rewrite: proxy.StripPrefix("/api")},
			in:   "/api/my%20file",
			want: "http://localhost:3000/base%20dir/my%20file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := proxy.BuildRule(tt.spec)
			require.NoError(t, err)
			in, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rule.UpstreamURL(in, tt.websocket).String())
		})
	}
}
