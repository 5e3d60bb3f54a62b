package proxy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// RuleSpec is the unvalidated form of a proxy rule as it comes out of a
// configuration source.
type RuleSpec struct {
	Target       string
	ChangeOrigin bool
	Rewrite      RewriteFunc
	// RewriteName is a human-readable label for Rewrite (e.g. "identity").
	RewriteName string
	// WS enables WebSocket upgrade proxying. Nil defaults to true for ws://
	// and wss:// targets and false otherwise.
	WS *bool
	// Secure verifies upstream TLS certificates. Nil defaults to true.
	Secure *bool
	// Headers are added to every forwarded request.
	Headers map[string]string
	// Timeout bounds the wait for upstream response headers. Zero disables it.
	Timeout time.Duration
	// PrependPath joins the target path in front of the rewritten request
	// path. Nil defaults to true.
	PrependPath *bool
}

// Rule is a validated forwarding instruction.
type Rule struct {
	// Prefix is set when the rule is registered in a Table. A prefix that
	// starts with "^" is a regular expression.
	Prefix       string
	Target       *url.URL
	ChangeOrigin bool
	Rewrite      RewriteFunc
	RewriteName  string
	WS           bool
	Secure       bool
	Headers      map[string]string
	Timeout      time.Duration
	PrependPath  bool

	pattern *regexp.Regexp
}

// BuildRule validates spec and returns the rule it describes. Target errors
// are reported as *InvalidTargetError.
func BuildRule(spec RuleSpec) (Rule, error) {
	target, err := ParseTarget(spec.Target)
	if err != nil {
		return Rule{}, err
	}

	rewrite := spec.Rewrite
	name := spec.RewriteName
	if rewrite == nil {
		rewrite = Identity
		name = "identity"
	}

	return Rule{
		Target:       target,
		ChangeOrigin: spec.ChangeOrigin,
		Rewrite:      rewrite,
		RewriteName:  name,
		WS:           boolOr(spec.WS, isWebSocketScheme(target.Scheme)),
		Secure:       boolOr(spec.Secure, true),
		Headers:      spec.Headers,
		Timeout:      spec.Timeout,
		PrependPath:  boolOr(spec.PrependPath, true),
	}, nil
}

// ParseTarget parses raw as an absolute http, https, ws or wss URI.
func ParseTarget(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &InvalidTargetError{Target: raw, Reason: "target is empty"}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, &InvalidTargetError{Target: raw, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &InvalidTargetError{Target: raw, Reason: "target must be absolute (scheme://host)"}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
		u.Scheme = strings.ToLower(u.Scheme)
	default:
		return nil, &InvalidTargetError{Target: raw, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	return u, nil
}

// Matches reports whether the request path is handled by this rule.
func (r *Rule) Matches(path string) bool {
	if r.pattern != nil {
		return r.pattern.MatchString(path)
	}
	return strings.HasPrefix(path, r.Prefix)
}

// IsPattern reports whether the rule prefix is a regular expression.
func (r *Rule) IsPattern() bool {
	return r.pattern != nil
}

// UpstreamURL computes the URL a request is forwarded to. The scheme is the
// HTTP or WebSocket flavour of the target scheme depending on websocket.
// The rewrite sees the escaped path, so encoded characters such as %2F
// reach the target unchanged.
func (r *Rule) UpstreamURL(in *url.URL, websocket bool) *url.URL {
	rawPath := r.Rewrite(in.EscapedPath())
	if r.PrependPath {
		rawPath = joinPath(r.Target.EscapedPath(), rawPath)
	}

	query := r.Target.RawQuery
	switch {
	case query == "":
		query = in.RawQuery
	case in.RawQuery != "":
		query = query + "&" + in.RawQuery
	}

	out := &url.URL{
		Scheme:   upstreamScheme(r.Target.Scheme, websocket),
		User:     r.Target.User,
		Host:     r.Target.Host,
		RawQuery: query,
	}
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		// The rewrite produced an invalid escape; send it as a literal path.
		out.Path = rawPath
		return out
	}
	out.Path = path
	if path != rawPath {
		out.RawPath = rawPath
	}
	return out
}

// joinPath mirrors httputil's single-slash join of a base path and a
// request path.
func joinPath(base, path string) string {
	if base == "" || base == "/" {
		if path == "" {
			return "/"
		}
		return path
	}
	if path == "" || path == "/" {
		return base
	}
	aslash := strings.HasSuffix(base, "/")
	bslash := strings.HasPrefix(path, "/")
	switch {
	case aslash && bslash:
		return base + path[1:]
	case !aslash && !bslash:
		return base + "/" + path
	}
	return base + path
}

func upstreamScheme(scheme string, websocket bool) string {
	secure := scheme == "https" || scheme == "wss"
	switch {
	case websocket && secure:
		return "wss"
	case websocket:
		return "ws"
	case secure:
		return "https"
	default:
		return "http"
	}
}

func isWebSocketScheme(scheme string) bool {
	return scheme == "ws" || scheme == "wss"
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
