// Package telemetry provides OpenTelemetry instrumentation for Kartta.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"

	"github.com/yairfalse/kartta/internal/config"
	kresource "github.com/yairfalse/kartta/pkg/resource"
)

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	targetDuration metric.Float64Histogram
	targetRecords  metric.Int64Counter
	targetFailures metric.Int64Counter
	abandoned      metric.Int64UpDownCounter
}

// Option configures a Provider.
type Option func(*options)

type options struct {
	readers []sdkmetric.Reader
}

// WithReader attaches an extra metric reader, such as the Prometheus
// exporter backing /metrics.
func WithReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.readers = append(o.readers, r) }
}

// NewProvider creates a new telemetry provider and installs it globally.
func NewProvider(ctx context.Context, cfg config.OTELConfig, opts ...Option) (*Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, o.readers); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate))
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("kartta")

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, readers []sdkmetric.Reader) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("kartta")

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	switch {
	case cfg.Insecure:
		opts = append(opts, otlptracegrpc.WithInsecure())
	case cfg.CAFile != "":
		creds, err := credentials.NewClientTLSFromFile(cfg.CAFile, "")
		if err != nil {
			return nil, fmt.Errorf("load ca file: %w", err)
		}
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	switch {
	case cfg.Insecure:
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	case cfg.CAFile != "":
		creds, err := credentials.NewClientTLSFromFile(cfg.CAFile, "")
		if err != nil {
			return nil, fmt.Errorf("load ca file: %w", err)
		}
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(creds))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.targetDuration, err = p.meter.Float64Histogram(
		"kartta_target_scan_duration_seconds",
		metric.WithDescription("Duration of a single target scan"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create target_scan_duration: %w", err)
	}

	p.targetRecords, err = p.meter.Int64Counter(
		"kartta_target_records_total",
		metric.WithDescription("Records collected from successful targets"),
	)
	if err != nil {
		return fmt.Errorf("create target_records: %w", err)
	}

	p.targetFailures, err = p.meter.Int64Counter(
		"kartta_target_failures_total",
		metric.WithDescription("Failed targets by error type"),
	)
	if err != nil {
		return fmt.Errorf("create target_failures: %w", err)
	}

	p.abandoned, err = p.meter.Int64UpDownCounter(
		"kartta_abandoned_adapters",
		metric.WithDescription("Timed-out adapters still holding a scan slot"),
	)
	if err != nil {
		return fmt.Errorf("create abandoned_adapters: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// RecordTarget records one settled target.
func (p *Provider) RecordTarget(ctx context.Context, outcome kresource.Outcome, d time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("region", outcome.Target.Region),
		attribute.String("kind", string(outcome.Target.Kind)),
	}

	if outcome.OK() {
		p.targetDuration.Record(ctx, d.Seconds(), metric.WithAttributes(append(attrs, attribute.String("outcome", "ok"))...))
		p.targetRecords.Add(ctx, int64(len(outcome.Records)), metric.WithAttributes(attrs...))
		return
	}

	p.targetDuration.Record(ctx, d.Seconds(), metric.WithAttributes(append(attrs, attribute.String("outcome", "failed"))...))
	p.targetFailures.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.type", string(outcome.Err.Kind)))...))
}

// RecordAbandoned tracks adapters left running past their timeout.
func (p *Provider) RecordAbandoned(ctx context.Context, t kresource.Target, delta int64) {
	p.abandoned.Add(ctx, delta, metric.WithAttributes(attribute.String("kind", string(t.Kind))))
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
