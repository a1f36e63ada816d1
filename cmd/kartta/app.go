package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/internal/config"
	"github.com/yairfalse/kartta/internal/plugin"
	"github.com/yairfalse/kartta/internal/plugin/aws"
	"github.com/yairfalse/kartta/internal/query"
	"github.com/yairfalse/kartta/internal/scan"
	"github.com/yairfalse/kartta/internal/telemetry"
)

// loadConfig reads path, or starts from defaults when path is empty, then
// applies the --region and --service overrides.
func loadConfig(path string, regions, services []string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	}

	if len(regions) > 0 {
		cfg.Regions = trimAll(regions)
	}
	if len(services) > 0 {
		cfg.Services = trimAll(services)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// setupLogging applies the configured level and format. --debug wins.
func setupLogging(cfg config.LogConfig, debug bool) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		level = l
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == config.LogFormatJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Hook(telemetry.TraceHook{})
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Hook(telemetry.TraceHook{})
	}
	return nil
}

// newScanner wires the AWS adapters into an orchestrator.
func newScanner(ctx context.Context, cfg *config.Config, tel *telemetry.Provider) (*scan.Orchestrator, error) {
	provider, err := aws.New(ctx, aws.Config{
		Profile:           cfg.AWS.Profile,
		ThrottleRetries:   cfg.Scanner.ThrottleRetries,
		ThrottleBaseDelay: cfg.Scanner.ThrottleBaseDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("create aws provider: %w", err)
	}

	registry := plugin.NewRegistry()
	provider.Register(registry)

	return scan.New(registry,
		scan.WithConcurrency(cfg.Scanner.Concurrency),
		scan.WithTargetTimeout(cfg.Scanner.TargetTimeout),
		scan.WithScanTimeout(cfg.Scanner.ScanTimeout),
		scan.WithTracer(tel.Tracer()),
		scan.WithRecorder(tel),
	), nil
}

func newFacade(cfg *config.Config, scanner query.Scanner, publisher query.Publisher) (*query.Facade, error) {
	return query.New(query.Config{
		Regions: cfg.Regions,
		Kinds:   cfg.Kinds(),
		TTL:     cfg.Cache.TTL,
		Filter:  cfg.TagFilter(),
	}, scanner, query.WithPublisher(publisher))
}
