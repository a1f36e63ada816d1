package daemon

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/kartta/internal/inventory"
	"github.com/yairfalse/kartta/pkg/resource"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions
type DaemonMetrics struct {
	refreshes           metric.Int64Counter
	refreshDuration     metric.Float64Histogram
	resourcesDiscovered metric.Int64Gauge
}

// NewDaemonMetrics creates daemon metrics on the global meter provider.
func NewDaemonMetrics() (*DaemonMetrics, error) {
	return newDaemonMetrics(otel.Meter("kartta.daemon"))
}

func newDaemonMetrics(meter metric.Meter) (*DaemonMetrics, error) {
	refreshes, err := meter.Int64Counter(
		"kartta.daemon.refreshes",
		metric.WithDescription("Number of background refresh runs"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create refreshes counter: %w", err)
	}

	refreshDuration, err := meter.Float64Histogram(
		"kartta.daemon.refresh.duration",
		metric.WithDescription("Duration of background refreshes"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create refresh duration: %w", err)
	}

	resourcesDiscovered, err := meter.Int64Gauge(
		"kartta.resources.discovered",
		metric.WithDescription("Number of cloud resources in the latest refresh"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resources gauge: %w", err)
	}

	return &DaemonMetrics{
		refreshes:           refreshes,
		refreshDuration:     refreshDuration,
		resourcesDiscovered: resourcesDiscovered,
	}, nil
}

// RecordRefresh records a refresh run with status success, partial or error.
func (m *DaemonMetrics) RecordRefresh(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.refreshes.Add(ctx, 1, attrs)
	m.refreshDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordSnapshot records per-target record counts for successful targets.
func (m *DaemonMetrics) RecordSnapshot(ctx context.Context, snap *inventory.Snapshot) {
	counts := make(map[resource.Target]int64)
	for _, t := range snap.Targets() {
		counts[t] = 0
	}
	for _, f := range snap.Failures() {
		delete(counts, f.Target)
	}
	for _, r := range snap.Records() {
		if _, ok := counts[r.Target()]; ok {
			counts[r.Target()]++
		}
	}

	for t, n := range counts {
		m.resourcesDiscovered.Record(ctx, n,
			metric.WithAttributes(
				attribute.String("resource.type", string(t.Kind)),
				attribute.String("cloud.provider", "aws"),
				attribute.String("cloud.region", t.Region),
			),
		)
	}
}
