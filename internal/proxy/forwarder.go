package proxy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Forwarder is an HTTP middleware that intercepts requests matching a rule
// in the routing table and forwards them upstream. Requests that match no
// rule are passed to the next handler untouched.
type Forwarder struct {
	table   *Table
	logger  *slog.Logger
	metrics *Metrics

	proxies []*httputil.ReverseProxy
	relays  []*wsRelay

	done      chan struct{}
	closeOnce sync.Once
}

// NewForwarder builds one reverse proxy (and WebSocket relay, for rules that
// allow it) per rule. The table must already be sealed.
func NewForwarder(table *Table, logger *slog.Logger, metrics *Metrics) (*Forwarder, error) {
	if table == nil {
		return nil, errors.New("routing table is required")
	}
	if !table.Sealed() {
		return nil, errors.New("routing table must be sealed before forwarding")
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &Forwarder{
		table:   table,
		logger:  logger.With("component", "proxy"),
		metrics: metrics,
		proxies: make([]*httputil.ReverseProxy, len(table.rules)),
		relays:  make([]*wsRelay, len(table.rules)),
		done:    make(chan struct{}),
	}

	for i, rule := range table.rules {
		f.proxies[i] = f.newReverseProxy(rule)
		if rule.WS {
			f.relays[i] = newWSRelay(rule, f.logger, metrics, f.done)
		}
	}
	return f, nil
}

// Middleware returns the forwarding middleware wrapped around next.
func (f *Forwarder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := f.table.matchIndex(r.URL.Path)
		if i < 0 {
			next.ServeHTTP(w, r)
			return
		}
		rule := f.table.rules[i]

		if websocket.IsWebSocketUpgrade(r) {
			relay := f.relays[i]
			if relay == nil {
				// WebSocket proxying is off for this rule; leave the upgrade
				// to whatever serves unmatched requests.
				next.ServeHTTP(w, r)
				return
			}
			relay.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		f.proxies[i].ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		f.metrics.observeRequest(rule.Prefix, status, time.Since(start))
		f.logger.Debug("request proxied",
			slog.String("prefix", rule.Prefix),
			slog.String("path", r.URL.Path),
			slog.String("target", rule.Target.Host),
			slog.Int("status", status),
		)
	})
}

// Close tears down every open WebSocket relay. It is meant to be registered
// with http.Server.RegisterOnShutdown since hijacked connections are not
// tracked by the server.
func (f *Forwarder) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *Forwarder) newReverseProxy(rule *Rule) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = rule.UpstreamURL(pr.In.URL, false)
			pr.Out.Host = pr.In.Host
			if rule.ChangeOrigin {
				pr.Out.Host = rule.Target.Host
			}
			pr.SetXForwarded()
			for k, v := range rule.Headers {
				pr.Out.Header.Set(k, v)
			}
		},
		Transport:    newTransport(rule),
		ErrorLog:     slog.NewLogLogger(f.logger.Handler(), slog.LevelWarn),
		ErrorHandler: f.errorHandler(rule),
	}
}

func (f *Forwarder) errorHandler(rule *Rule) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status := statusForError(err)
		f.logger.Error("proxy request failed",
			slog.String("prefix", rule.Prefix),
			slog.String("target", rule.Target.String()),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
		writeError(w, status, fmt.Sprintf("proxy %s -> %s: %v", rule.Prefix, rule.Target.Host, err))
	}
}

func newTransport(rule *Rule) http.RoundTripper {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: rule.Timeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !rule.Secure, //nolint:gosec // opt-in via secure: false
		},
	}
	return otelhttp.NewTransport(base)
}

// statusForError maps an upstream round-trip failure to the status returned
// to the client.
func statusForError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
