// Package health periodically checks that every proxy target accepts TCP
// connections and reports state changes to the event bus and metrics.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shaharia-lab/devproxy/internal/eventbus"
	"github.com/shaharia-lab/devproxy/internal/proxy"
)

// Status is the last observed reachability of a target.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

const defaultDialTimeout = 2 * time.Second

// EventPublisher allows the monitor to emit events without depending on a
// concrete event bus implementation.
type EventPublisher interface {
	Publish(eventType string, payload map[string]string)
}

// DialFunc opens a connection; it matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds the monitor configuration.
type Config struct {
	Table    *proxy.Table
	Interval time.Duration
	// DialTimeout bounds a single probe. Defaults to 2s.
	DialTimeout time.Duration
	// Metrics and EventPublisher are optional.
	Metrics        *proxy.Metrics
	EventPublisher EventPublisher
	Logger         *slog.Logger
	// Dial overrides the connection dialer.
	Dial DialFunc
}

// TargetStatus is the health record of one proxy rule.
type TargetStatus struct {
	Prefix      string    `json:"prefix"`
	Target      string    `json:"target"`
	Address     string    `json:"address"`
	Status      Status    `json:"status"`
	LastChecked time.Time `json:"last_checked,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Monitor schedules one gocron job per proxy rule.
type Monitor struct {
	cron          gocron.Scheduler
	cfg           Config
	logger        *slog.Logger
	probeDuration metric.Float64Histogram

	mu   sync.Mutex
	jobs map[string]uuid.UUID // prefix → gocron job UUID

	stateMu sync.RWMutex
	states  map[string]*TargetStatus
	order   []string
}

// New creates a Monitor for every rule in cfg.Table. Nothing is probed
// until Start or Probe is called.
func New(cfg Config) (*Monitor, error) {
	if cfg.Table == nil {
		return nil, errors.New("routing table is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = (&net.Dialer{}).DialContext
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}

	probeDuration, err := otel.Meter("github.com/shaharia-lab/devproxy/internal/health").Float64Histogram(
		"devproxy.health.probe.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time taken to dial a proxy target."),
	)
	if err != nil {
		return nil, fmt.Errorf("creating probe histogram: %w", err)
	}

	m := &Monitor{
		cron:          cron,
		cfg:           cfg,
		logger:        cfg.Logger.With("component", "health"),
		probeDuration: probeDuration,
		jobs:          make(map[string]uuid.UUID),
		states:        make(map[string]*TargetStatus),
	}
	for _, rule := range cfg.Table.Rules() {
		m.states[rule.Prefix] = &TargetStatus{
			Prefix:  rule.Prefix,
			Target:  rule.Target.String(),
			Address: dialAddress(rule.Target),
			Status:  StatusUnknown,
		}
		m.order = append(m.order, rule.Prefix)
	}
	return m, nil
}

// Start schedules a probe job per rule, running each immediately and then
// every Interval. A non-positive Interval leaves every target unknown.
func (m *Monitor) Start(ctx context.Context) error {
	if m.cfg.Interval <= 0 {
		m.logger.Info("target health checks disabled")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, prefix := range m.order {
		p := prefix
		job, err := m.cron.NewJob(
			gocron.DurationJob(m.cfg.Interval),
			gocron.NewTask(func() { m.Probe(ctx, p) }),
			gocron.WithStartAt(gocron.WithStartImmediately()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("scheduling health check for %q: %w", p, err)
		}
		m.jobs[p] = job.ID()
	}

	m.cron.Start()
	m.logger.Info("target health checks started", "targets", len(m.jobs), "interval", m.cfg.Interval)
	return nil
}

// Stop shuts down the gocron scheduler.
func (m *Monitor) Stop() error {
	return m.cron.Shutdown()
}

// Probe dials the target of the rule registered under prefix once and
// records the result. Nothing is recorded once ctx is canceled.
func (m *Monitor) Probe(ctx context.Context, prefix string) Status {
	m.stateMu.RLock()
	st, ok := m.states[prefix]
	var addr string
	if ok {
		addr = st.Address
	}
	m.stateMu.RUnlock()
	if !ok {
		return StatusUnknown
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	start := time.Now()
	status := StatusUp
	var probeErr error
	conn, err := m.cfg.Dial(dialCtx, "tcp", addr)
	if err != nil {
		status = StatusDown
		probeErr = err
	} else {
		_ = conn.Close()
	}
	if ctx.Err() != nil {
		// Shutting down; a canceled dial says nothing about the target.
		return m.current(prefix)
	}
	m.probeDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("prefix", prefix),
		attribute.String("status", string(status)),
	))

	m.record(prefix, status, probeErr)
	return status
}

func (m *Monitor) record(prefix string, status Status, probeErr error) {
	m.stateMu.Lock()
	st := m.states[prefix]
	previous := st.Status
	st.Status = status
	st.LastChecked = time.Now()
	st.LastError = ""
	if probeErr != nil {
		st.LastError = probeErr.Error()
	}
	target := st.Target
	m.stateMu.Unlock()

	m.cfg.Metrics.SetTargetUp(prefix, status == StatusUp)

	if previous == status {
		return
	}

	eventType := eventbus.TypeTargetUp
	if status == StatusDown {
		eventType = eventbus.TypeTargetDown
	}
	if m.cfg.EventPublisher != nil {
		payload := map[string]string{"prefix": prefix, "target": target}
		if probeErr != nil {
			payload["error"] = probeErr.Error()
		}
		m.cfg.EventPublisher.Publish(eventType, payload)
	}
	m.logger.Debug("target status changed", "prefix", prefix, "from", previous, "to", status)
}

func (m *Monitor) current(prefix string) Status {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.states[prefix].Status
}

// Status returns the health record for prefix.
func (m *Monitor) Status(prefix string) (TargetStatus, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	st, ok := m.states[prefix]
	if !ok {
		return TargetStatus{}, false
	}
	return *st, true
}

// Snapshot returns every health record in rule order.
func (m *Monitor) Snapshot() []TargetStatus {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]TargetStatus, 0, len(m.order))
	for _, prefix := range m.order {
		out = append(out, *m.states[prefix])
	}
	return out
}

// dialAddress returns host:port for target, filling in the scheme's default
// port when the URI has none.
func dialAddress(target *url.URL) string {
	port := target.Port()
	if port == "" {
		switch target.Scheme {
		case "https", "wss":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(target.Hostname(), port)
}
