// Package telemetry configures OpenTelemetry for the dev server.
//
// Metrics are always bridged into the Prometheus registry so that
// instrumented HTTP handlers and transports show up next to the proxy
// collectors. When an OTLP endpoint is configured, traces, logs and
// metrics are also pushed to it over gRPC.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options configures Setup.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint is a host:port for an OTLP/gRPC collector. Empty disables
	// trace and log export.
	OTLPEndpoint string
	// Registerer receives the OpenTelemetry metrics. Required.
	Registerer prometheus.Registerer
}

// Telemetry owns the installed providers.
type Telemetry struct {
	logHandler slog.Handler
	shutdowns  []func(context.Context) error
}

// Setup installs global meter, tracer and logger providers.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	if opts.Registerer == nil {
		return nil, errors.New("prometheus registerer is required")
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "devproxy"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("building otel resource: %w", err)
	}

	t := &Telemetry{}

	promReader, err := otelprom.New(otelprom.WithRegisterer(opts.Registerer))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	metricOpts := []sdkmetric.Option{sdkmetric.WithReader(promReader), sdkmetric.WithResource(res)}
	if opts.OTLPEndpoint != "" {
		metricExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(opts.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating otlp metric exporter: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second)),
		))
	}
	mp := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetMeterProvider(mp)
	t.shutdowns = append(t.shutdowns, mp.Shutdown)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if opts.OTLPEndpoint == "" {
		return t, nil
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	t.shutdowns = append(t.shutdowns, tp.Shutdown)

	logExporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(opts.OTLPEndpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("creating otlp log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)
	t.shutdowns = append(t.shutdowns, lp.Shutdown)
	t.logHandler = otelslog.NewHandler(opts.ServiceName, otelslog.WithLoggerProvider(lp))

	return t, nil
}

// LogHandler returns a slog handler that exports records over OTLP, or nil
// when no endpoint is configured.
func (t *Telemetry) LogHandler() slog.Handler {
	return t.logHandler
}

// Exporting reports whether traces and logs leave the process.
func (t *Telemetry) Exporting() bool {
	return t.logHandler != nil
}

// Shutdown flushes and stops every provider, newest first.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}
