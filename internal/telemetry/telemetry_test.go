package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/yairfalse/kartta/internal/config"
	"github.com/yairfalse/kartta/pkg/resource"
)

func disabledConfig() config.OTELConfig {
	return config.OTELConfig{
		ServiceName: "test-kartta",
		Traces:      config.TracesConfig{Enabled: false},
		Metrics:     config.MetricsConfig{Enabled: false},
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())

	err = p.Shutdown(context.Background())
	require.NoError(t, err)
}

func TestNewProvider_WithEndpoint(t *testing.T) {
	cfg := config.OTELConfig{
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "test-kartta",
		Traces:      config.TracesConfig{Enabled: true, SampleRate: 1.0},
		Metrics:     config.MetricsConfig{Enabled: true},
	}

	// exporters connect lazily, so setup succeeds without a collector
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestNewProvider_MissingCAFile(t *testing.T) {
	cfg := config.OTELConfig{
		Endpoint:    "collector:4317",
		CAFile:      "/nonexistent/ca.pem",
		ServiceName: "test-kartta",
		Traces:      config.TracesConfig{Enabled: true, SampleRate: 1.0},
	}

	_, err := NewProvider(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load ca file")
}

func TestProvider_StartSpan(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "test-operation")
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	span.End()
	_ = p.Shutdown(context.Background())
}

func TestProvider_RecordTarget(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := NewProvider(context.Background(), disabledConfig(), WithReader(reader))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ok := resource.Outcome{
		Target:  resource.Target{Region: "us-east-1", Kind: resource.KindEC2},
		Records: []resource.Record{{ID: "i-1"}, {ID: "i-2"}},
	}
	failed := resource.Outcome{
		Target: resource.Target{Region: "ap-south-1", Kind: resource.KindS3},
		Err:    resource.NewError(resource.ErrKindAuth, "list buckets", errors.New("denied")),
	}

	p.RecordTarget(context.Background(), ok, 150*time.Millisecond)
	p.RecordTarget(context.Background(), failed, 20*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metrics[m.Name] = m
		}
	}

	records, ok2 := metrics["kartta_target_records_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok2)
	require.Len(t, records.DataPoints, 1)
	assert.Equal(t, int64(2), records.DataPoints[0].Value)

	failures, ok2 := metrics["kartta_target_failures_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok2)
	require.Len(t, failures.DataPoints, 1)
	errType, found := failures.DataPoints[0].Attributes.Value(attribute.Key("error.type"))
	require.True(t, found)
	assert.Equal(t, "auth", errType.AsString())

	duration, ok2 := metrics["kartta_target_scan_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok2)
	assert.Len(t, duration.DataPoints, 2)
}

func TestProvider_RecordAbandoned(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := NewProvider(context.Background(), disabledConfig(), WithReader(reader))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	target := resource.Target{Region: "us-east-1", Kind: resource.KindLambda}
	p.RecordAbandoned(context.Background(), target, 1)
	p.RecordAbandoned(context.Background(), target, 1)
	p.RecordAbandoned(context.Background(), target, -1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "kartta_abandoned_adapters" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			found = true
		}
	}
	assert.True(t, found)
}

func TestProvider_Shutdown(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())
	require.NoError(t, err)

	err = p.Shutdown(context.Background())
	assert.NoError(t, err)
}
