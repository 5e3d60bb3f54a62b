package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/devproxy/internal/build"
	"github.com/shaharia-lab/devproxy/internal/config"
	"github.com/shaharia-lab/devproxy/internal/eventbus"
	"github.com/shaharia-lab/devproxy/internal/health"
	"github.com/shaharia-lab/devproxy/internal/logger"
	"github.com/shaharia-lab/devproxy/internal/proxy"
	"github.com/shaharia-lab/devproxy/internal/server"
	"github.com/shaharia-lab/devproxy/internal/telemetry"
)

type serveFlags struct {
	port     int
	host     string
	root     string
	open     bool
	noBanner bool
	verbose  bool
}

// NewServeCmd returns the "serve" subcommand that starts the dev server.
func NewServeCmd(cfg *config.AppConfig) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"dev"},
		Short:   "Start the dev server",
		Long: `Start the dev server. Requests whose path matches a server.proxy prefix are
forwarded to the rule's target; everything else is served from the front-end
assets.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// CLI flags override env config.
			if cmd.Flags().Changed("port") {
				cfg.Port = flags.port
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = flags.host
			}
			if cmd.Flags().Changed("root") {
				cfg.Root = flags.root
			}

			if err := runServe(cmd.Context(), cfg, flags); err != nil {
				fmt.Fprintf(os.Stderr, "Logs: %s\n", filepath.Join(cfg.LogDir(), "devproxy.log"))
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "HTTP server port (overrides DEVPROXY_PORT and server.port)")
	cmd.Flags().StringVar(&flags.host, "host", "", "Interface to bind (overrides DEVPROXY_HOST and server.host)")
	cmd.Flags().StringVar(&flags.root, "root", "", "Serve static assets from this directory instead of the embedded build")
	cmd.Flags().BoolVar(&flags.open, "open", false, "Open the browser once the server is ready")
	cmd.Flags().BoolVar(&flags.noBanner, "no-banner", false, "Do not print the startup banner")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Also write logs to stderr")

	return cmd
}

func runServe(parent context.Context, cfg *config.AppConfig, flags serveFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Configuration errors abort before anything is started.
	dev, plugins, err := loadDevConfig(cfg)
	if err != nil {
		return err
	}
	assets, err := assetFS(cfg.AssetRoot(dev))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    "devproxy",
		ServiceVersion: build.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Registerer:     registry,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	var extra []slog.Handler
	if tel.Exporting() {
		extra = append(extra, tel.LogHandler())
	}
	if flags.verbose {
		extra = append(extra, logger.NewConsoleHandler(os.Stderr, cfg.SlogLevel()))
	}
	sysLogger, err := logger.NewSystemLogger(cfg.LogDir(), cfg.SlogLevel(), extra...)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	accessLogger, err := logger.NewAccessLogger(cfg.LogDir(), cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("initializing access logger: %w", err)
	}

	host, port := cfg.ListenAddress(dev)
	sysLogger.Info("devproxy starting",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("config", dev.Source),
		slog.Int("proxy_rules", dev.Server.Proxy.Len()),
		slog.String("version", build.Version),
		slog.String("commit", build.CommitSHA),
		slog.String("build_date", build.BuildDate),
	)

	bus := eventbus.New(0, sysLogger)
	bus.Subscribe(eventbus.LogListener(sysLogger))
	defer bus.Close()

	bus.Publish(eventbus.TypeConfigLoaded, map[string]string{
		"source":      dev.Source,
		"proxy_rules": strconv.Itoa(dev.Server.Proxy.Len()),
		"plugins":     strconv.Itoa(len(plugins)),
	})

	metrics, err := proxy.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	monitor, err := health.New(health.Config{
		Table:          dev.Server.Proxy,
		Interval:       cfg.HealthInterval,
		Metrics:        metrics,
		EventPublisher: bus,
		Logger:         sysLogger,
	})
	if err != nil {
		return fmt.Errorf("creating health monitor: %w", err)
	}
	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting health monitor: %w", err)
	}
	defer func() { _ = monitor.Stop() }()

	srv, err := server.New(server.Options{
		Host:         host,
		Port:         port,
		StrictPort:   dev.Server.StrictPort,
		Assets:       assets,
		Headers:      dev.Server.Headers,
		Table:        dev.Server.Proxy,
		Plugins:      plugins,
		Registry:     registry,
		Metrics:      metrics,
		Health:       monitor,
		Events:       bus,
		Logger:       sysLogger,
		AccessLogger: accessLogger,
	})
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		url := localURL(host, srv.Addr())
		sysLogger.Info("server ready", "url", url)
		if !flags.noBanner {
			printBanner(os.Stdout, bannerInfo{
				Version: build.Version,
				URL:     url,
				LogFile: filepath.Join(cfg.LogDir(), "devproxy.log"),
				Rules:   dev.Server.Proxy.Rules(),
				Plugins: plugins,
			})
		}
		if flags.open || dev.Server.Open {
			openBrowser(url)
		}
	}()

	return srv.Run(ctx)
}

// localURL builds the browsable URL for the bound address, showing the
// configured host name rather than a wildcard address.
func localURL(host, boundAddr string) string {
	_, port, err := net.SplitHostPort(boundAddr)
	if err != nil {
		return "http://" + boundAddr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}
