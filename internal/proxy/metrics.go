package proxy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records forwarding statistics per proxy prefix. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	websockets *prometheus.GaugeVec
	targetUp   *prometheus.GaugeVec
}

// NewMetrics creates the proxy collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devproxy",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Requests forwarded by proxy rule and response status code.",
		}, []string{"prefix", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "devproxy",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Time spent forwarding a request upstream.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"prefix"}),
		websockets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "devproxy",
			Name:      "websocket_connections",
			Help:      "Open WebSocket relays by proxy rule.",
		}, []string{"prefix"}),
		targetUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "devproxy",
			Name:      "target_up",
			Help:      "Whether the proxy target accepted a TCP connection on the last probe.",
		}, []string{"prefix"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.websockets, m.targetUp} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(prefix string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(prefix, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(prefix).Observe(elapsed.Seconds())
}

func (m *Metrics) websocketOpened(prefix string) {
	if m == nil {
		return
	}
	m.websockets.WithLabelValues(prefix).Inc()
}

func (m *Metrics) websocketClosed(prefix string) {
	if m == nil {
		return
	}
	m.websockets.WithLabelValues(prefix).Dec()
}

// SetTargetUp records the latest reachability probe result for prefix.
func (m *Metrics) SetTargetUp(prefix string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.targetUp.WithLabelValues(prefix).Set(v)
}
