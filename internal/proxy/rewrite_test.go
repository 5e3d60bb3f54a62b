package proxy_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaharia-lab/devproxy/internal/proxy"
)

func TestIdentity_ReturnsInputUnchanged(t *testing.T) {
	inputs := []string{
		"",
		"/",
		"/api",
		"/api/v1/robot",
		"/api/v1/robot?x=1",
		"relative/path",
		"/with space/and%20escapes",
		"/ünïcödé/路径",
		"//double//slashes//",
	}
	for _, in := range inputs {
		assert.Equal(t, in, proxy.Identity(in), "identity(%q)", in)
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		in     string
		want   string
	}{
		{"removes prefix", "/api", "/api/v1/robot", "/v1/robot"},
		{"exact prefix becomes root", "/api", "/api", "/"},
		{"no slash after prefix", "/api", "/apiv1", "/v1"},
		{"non-matching path untouched", "/api", "/other", "/other"},
		{"trailing slash prefix", "/api/", "/api/users", "/users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, proxy.StripPrefix(tt.prefix)(tt.in))
		})
	}
}

func TestStripMatch(t *testing.T) {
	re := regexp.MustCompile(`^/fallback/v[0-9]+`)
	rewrite := proxy.StripMatch(re)

	assert.Equal(t, "/users", rewrite("/fallback/v2/users"))
	assert.Equal(t, "/", rewrite("/fallback/v10"))
	assert.Equal(t, "/other/fallback/v1", rewrite("/other/fallback/v1"))
}

func TestReplace(t *testing.T) {
	rewrite := proxy.Replace(regexp.MustCompile(`^/api/(.*)$`), "/v2/$1")

	assert.Equal(t, "/v2/users/1", rewrite("/api/users/1"))
	assert.Equal(t, "/static/app.js", rewrite("/static/app.js"))
}
