package plugin

import (
	"github.com/Masterminds/semver/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

// Metrics plugin identity.
const (
	MetricsName    = "metrics"
	MetricsVersion = "1.0.0"

	// DefaultMetricsPath is where the metrics plugin mounts its handler.
	DefaultMetricsPath = "/__devproxy/metrics"
)

type metricsOptions struct {
	Path string `yaml:"path"`
}

type metricsPlugin struct {
	path string
}

func newMetrics(options *yaml.Node) (Plugin, error) {
	opts := metricsOptions{Path: DefaultMetricsPath}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.Path == "" {
		opts.Path = DefaultMetricsPath
	}
	return &metricsPlugin{path: opts.Path}, nil
}

func (p *metricsPlugin) Name() string             { return MetricsName }
func (p *metricsPlugin) Version() *semver.Version { return semver.MustParse(MetricsVersion) }

func (p *metricsPlugin) Setup(host Host) error {
	host.Handle(p.path, promhttp.HandlerFor(host.Gatherer(), promhttp.HandlerOpts{}))
	return nil
}
