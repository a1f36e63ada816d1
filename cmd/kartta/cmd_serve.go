package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/yairfalse/kartta/internal/api"
	"github.com/yairfalse/kartta/internal/daemon"
	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr     string
	serveRegions  []string
	serveServices []string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the inventory over HTTP",
	Long: `Serve the inventory over HTTP.

Queries are answered from the cached snapshot while it is younger than
cache.ttl; otherwise they trigger a scan. Concurrent misses for the same
selection share one scan. With cache.refresh_interval set, a background
loop keeps the full matrix warm.

Endpoints:
- /               dashboard
- /resources      JSON inventory (?region=&service=&refresh=)
- /all-table      HTML table
- /healthz        refresh health
- /metrics        Prometheus metrics`,
	Example: `  kartta serve --config kartta.yaml
  kartta serve -c kartta.yaml --addr :9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringSliceVarP(&serveRegions, "region", "r", nil, "Regions to scan (overrides config)")
	serveCmd.Flags().StringSliceVarP(&serveServices, "service", "s", nil, "Services to scan (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cfgFile, serveRegions, serveServices)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if err := setupLogging(cfg.Log, debug); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// OTEL metrics with Prometheus exporter
	promExporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	tel, err := telemetry.NewProvider(ctx, cfg.OTEL, telemetry.WithReader(promExporter))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	promEmitter, err := emitter.NewPrometheusEmitter(emitter.WithMeter(tel.Meter()))
	if err != nil {
		return fmt.Errorf("create emitter: %w", err)
	}
	emit := emitter.NewMultiEmitter(emitter.LogEmitter{}, promEmitter)
	defer func() { _ = emit.Close() }()

	scanner, err := newScanner(ctx, cfg, tel)
	if err != nil {
		return err
	}
	facade, err := newFacade(cfg, scanner, emit)
	if err != nil {
		return err
	}

	metrics, err := daemon.NewDaemonMetrics()
	if err != nil {
		return fmt.Errorf("create daemon metrics: %w", err)
	}
	d, err := daemon.NewDaemon(daemon.Config{
		Interval: cfg.Cache.RefreshInterval,
		Metrics:  metrics,
	}, facade)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	srv := api.NewServer(facade, api.WithHealth(d), api.WithCatalog(facade))
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	log.Info().
		Strs("regions", cfg.Regions).
		Int("services", len(cfg.Kinds())).
		Dur("ttl", cfg.Cache.TTL).
		Dur("refresh_interval", cfg.Cache.RefreshInterval).
		Str("addr", ln.Addr().String()).
		Msg("kartta starting")

	var g run.Group
	{
		execute, interrupt := run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM)
		g.Add(func() error {
			if err := execute(); err != nil {
				log.Info().Str("reason", err.Error()).Msg("shutting down")
			}
			return nil
		}, interrupt)
	}
	{
		refreshCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(refreshCtx)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(func() error {
			return httpServer.Serve(ln)
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("http shutdown")
			}
		})
	}

	if err := g.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
