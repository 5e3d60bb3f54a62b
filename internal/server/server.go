package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaharia-lab/devproxy/internal/eventbus"
	"github.com/shaharia-lab/devproxy/internal/health"
	"github.com/shaharia-lab/devproxy/internal/plugin"
	"github.com/shaharia-lab/devproxy/internal/proxy"
)

const (
	// InternalPrefix is reserved for the dev server's own endpoints.
	InternalPrefix = "/__devproxy"

	maxPortAttempts = 10
	shutdownTimeout = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	Host       string
	Port       int
	StrictPort bool

	// Assets is served for every request no proxy rule claims. Nil serves 404s.
	Assets fs.FS
	// Headers are added to every static response.
	Headers map[string]string

	Table   *proxy.Table
	Plugins []plugin.Plugin

	// Registry backs the metrics plugin. Required when Metrics is set.
	Registry *prometheus.Registry
	Metrics  *proxy.Metrics
	// Health and Events are optional.
	Health *health.Monitor
	Events eventbus.EventBus

	Logger       *slog.Logger
	AccessLogger *slog.Logger
}

// Server is the dev HTTP server: internal endpoints, proxy rules and
// static assets, in that order of precedence.
type Server struct {
	opts      Options
	logger    *slog.Logger
	forwarder *proxy.Forwarder

	middlewares   []func(http.Handler) http.Handler
	routes        map[string]http.Handler
	fallbackIndex string
	mimeTypes     map[string]string

	httpServer *http.Server

	mu    sync.Mutex
	addr  string
	ready chan struct{}
}

// New creates a Server and installs its plugins.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Table == nil {
		table := proxy.NewTable()
		table.Seal()
		opts.Table = table
	}

	fwd, err := proxy.NewForwarder(opts.Table, opts.Logger, opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("creating forwarder: %w", err)
	}

	s := &Server{
		opts:      opts,
		logger:    opts.Logger,
		forwarder: fwd,
		routes:    make(map[string]http.Handler),
		mimeTypes: make(map[string]string),
		ready:     make(chan struct{}),
	}

	if err := plugin.Install(s, opts.Plugins); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Handler:           otelhttp.NewHandler(s.router(), "devproxy"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(fwd.Close)
	return s, nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Route(InternalPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/routes", s.handleRoutes)
		for pattern, h := range s.routes {
			if sub, ok := strings.CutPrefix(pattern, InternalPrefix+"/"); ok {
				r.Handle("/"+sub, h)
			}
		}
	})
	for pattern, h := range s.routes {
		if !strings.HasPrefix(pattern, InternalPrefix+"/") {
			r.Handle(pattern, h)
		}
	}

	r.Group(func(r chi.Router) {
		r.Use(s.middlewares...)
		r.Use(s.forwarder.Middleware)
		r.Handle("/*", s.staticHandler())
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Use implements plugin.Host.
func (s *Server) Use(middlewares ...func(http.Handler) http.Handler) {
	s.middlewares = append(s.middlewares, middlewares...)
}

// Handle implements plugin.Host.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.routes[pattern] = h
}

// EnableHistoryFallback implements plugin.Host.
func (s *Server) EnableHistoryFallback(index string) {
	s.fallbackIndex = index
}

// AddMIMEType implements plugin.Host.
func (s *Server) AddMIMEType(ext, typ string) {
	s.mimeTypes[ext] = typ
}

// Gatherer implements plugin.Host.
func (s *Server) Gatherer() prometheus.Gatherer {
	if s.opts.Registry == nil {
		return prometheus.DefaultGatherer
	}
	return s.opts.Registry
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or "" before Ready.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.listen(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	if s.opts.Events != nil {
		s.opts.Events.Publish(eventbus.TypeServerStarted, map[string]string{
			"address": ln.Addr().String(),
			"routes":  strconv.Itoa(s.opts.Table.Len()),
		})
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down server")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// listen binds host:port. Unless StrictPort is set, a busy port is skipped
// in favour of the next one.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	lc := &net.ListenConfig{}
	port := s.opts.Port
	attempts := maxPortAttempts
	if s.opts.StrictPort || port == 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(port+i))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			if i > 0 {
				s.logger.Warn("port in use, using next available", "requested", s.opts.Port, "port", port+i)
			}
			return ln, nil
		}
		lastErr = fmt.Errorf("listening on %s: %w", addr, err)
		if !errors.Is(err, syscall.EADDRINUSE) {
			break
		}
	}
	return nil, lastErr
}

// requestLogger is a chi middleware that logs each incoming request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	logger := s.opts.AccessLogger
	if logger == nil {
		logger = s.logger
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
		}
		logger.LogAttrs(r.Context(), slog.LevelInfo, "http request", attrs...)
	})
}

type healthResponse struct {
	Status  string                `json:"status"`
	Routes  int                   `json:"routes"`
	Plugins []string              `json:"plugins"`
	Targets []health.TargetStatus `json:"targets,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.opts.Plugins))
	for _, p := range s.opts.Plugins {
		names = append(names, p.Name())
	}
	resp := healthResponse{Status: "ok", Routes: s.opts.Table.Len(), Plugins: names}
	if s.opts.Health != nil {
		resp.Targets = s.opts.Health.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Routes(s.opts.Table, s.opts.Health))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
