package emitter

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/kartta/internal/inventory"
	"github.com/yairfalse/kartta/pkg/resource"
)

// PrometheusEmitter exposes the latest snapshot as OTEL gauges, scraped
// through the Prometheus exporter.
type PrometheusEmitter struct {
	meter metric.Meter

	// Metrics
	resourceInfo     metric.Int64ObservableGauge
	snapshotRecords  metric.Int64ObservableGauge
	snapshotFailures metric.Int64ObservableGauge
	snapshotComplete metric.Int64ObservableGauge
	registration     metric.Registration

	// State for observable gauges
	current atomic.Pointer[inventory.Snapshot]
}

// PrometheusOption configures a PrometheusEmitter.
type PrometheusOption func(*PrometheusEmitter)

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) PrometheusOption {
	return func(e *PrometheusEmitter) { e.meter = m }
}

// NewPrometheusEmitter creates a Prometheus emitter.
func NewPrometheusEmitter(opts ...PrometheusOption) (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{meter: otel.Meter("kartta")}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	// one series per record
	e.resourceInfo, err = e.meter.Int64ObservableGauge(
		"kartta_resource_info",
		metric.WithDescription("Cloud resource information"),
		metric.WithInt64Callback(e.observeResources),
	)
	if err != nil {
		return fmt.Errorf("create resource_info gauge: %w", err)
	}

	e.snapshotRecords, err = e.meter.Int64ObservableGauge(
		"kartta_snapshot_records",
		metric.WithDescription("Records in the latest snapshot per target"),
	)
	if err != nil {
		return fmt.Errorf("create snapshot_records gauge: %w", err)
	}

	e.snapshotFailures, err = e.meter.Int64ObservableGauge(
		"kartta_snapshot_failures",
		metric.WithDescription("Failed targets in the latest snapshot"),
	)
	if err != nil {
		return fmt.Errorf("create snapshot_failures gauge: %w", err)
	}

	e.snapshotComplete, err = e.meter.Int64ObservableGauge(
		"kartta_snapshot_complete",
		metric.WithDescription("1 when every target in the latest snapshot succeeded"),
	)
	if err != nil {
		return fmt.Errorf("create snapshot_complete gauge: %w", err)
	}

	e.registration, err = e.meter.RegisterCallback(e.observeSnapshot,
		e.snapshotRecords, e.snapshotFailures, e.snapshotComplete)
	if err != nil {
		return fmt.Errorf("register snapshot callback: %w", err)
	}

	return nil
}

// Emit swaps in the snapshot observed by the gauges.
func (e *PrometheusEmitter) Emit(_ context.Context, snap *inventory.Snapshot) error {
	if snap == nil {
		return nil
	}
	e.current.Store(snap)
	return nil
}

// observeResources is the callback for the resource_info gauge.
func (e *PrometheusEmitter) observeResources(_ context.Context, o metric.Int64Observer) error {
	snap := e.current.Load()
	if snap == nil {
		return nil
	}

	for _, r := range snap.Records() {
		attrs := []attribute.KeyValue{
			attribute.String("id", r.ID),
			attribute.String("kind", string(r.Kind)),
			attribute.String("region", r.Region),
			attribute.String("status", r.Status),
		}

		if r.Name != "" {
			attrs = append(attrs, attribute.String("name", r.Name))
		}

		for k, v := range r.Labels {
			if v != "" {
				attrs = append(attrs, attribute.String("label_"+k, v))
			}
		}

		o.Observe(1, metric.WithAttributes(attrs...))
	}

	return nil
}

func (e *PrometheusEmitter) observeSnapshot(_ context.Context, o metric.Observer) error {
	snap := e.current.Load()
	if snap == nil {
		return nil
	}

	counts := make(map[resource.Target]int64)
	for _, t := range snap.Targets() {
		counts[t] = 0
	}
	for _, r := range snap.Records() {
		counts[r.Target()]++
	}
	failed := make(map[resource.Target]bool)
	for _, f := range snap.Failures() {
		failed[f.Target] = true
		o.ObserveInt64(e.snapshotFailures, 1, metric.WithAttributes(
			attribute.String("region", f.Target.Region),
			attribute.String("kind", string(f.Target.Kind)),
			attribute.String("error.type", string(f.Kind)),
		))
	}
	for t, n := range counts {
		if failed[t] {
			continue
		}
		o.ObserveInt64(e.snapshotRecords, n, metric.WithAttributes(
			attribute.String("region", t.Region),
			attribute.String("kind", string(t.Kind)),
		))
	}

	complete := int64(0)
	if snap.Complete() {
		complete = 1
	}
	o.ObserveInt64(e.snapshotComplete, complete)
	return nil
}

// Close unregisters the snapshot callback.
func (e *PrometheusEmitter) Close() error {
	if e.registration != nil {
		return e.registration.Unregister()
	}
	return nil
}
