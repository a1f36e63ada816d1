package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/yairfalse/kartta/internal/inventory"
	"github.com/yairfalse/kartta/internal/plugin"
	"github.com/yairfalse/kartta/pkg/resource"
)

// Defaults for a scan pass.
const (
	DefaultConcurrency   = 10
	DefaultTargetTimeout = 30 * time.Second
	DefaultScanTimeout   = 2 * time.Minute
)

// AdapterSource resolves the adapter for a kind.
type AdapterSource interface {
	Get(kind resource.Kind) (plugin.Adapter, bool)
}

// Recorder receives one call per settled target. RecordAbandoned gets +1
// when a timed-out adapter is left running and -1 when it finally returns.
type Recorder interface {
	RecordTarget(ctx context.Context, outcome resource.Outcome, d time.Duration)
	RecordAbandoned(ctx context.Context, t resource.Target, delta int64)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency caps in-flight adapter calls.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithTargetTimeout bounds a single adapter call.
func WithTargetTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.targetTimeout = d
		}
	}
}

// WithScanTimeout bounds a whole pass. Zero keeps the default.
func WithScanTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.scanTimeout = d
		}
	}
}

// WithTracer sets the tracer used for pass and target spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithRecorder sets the per-target metrics hook.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// Orchestrator runs adapters over a set of targets and merges the outcomes.
// The concurrency cap is shared by every pass run through the same instance.
type Orchestrator struct {
	adapters      AdapterSource
	concurrency   int
	targetTimeout time.Duration
	scanTimeout   time.Duration
	sem           *semaphore.Weighted
	tracer        trace.Tracer
	recorder      Recorder
}

// New creates an orchestrator.
func New(adapters AdapterSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapters:      adapters,
		concurrency:   DefaultConcurrency,
		targetTimeout: DefaultTargetTimeout,
		scanTimeout:   DefaultScanTimeout,
		tracer:        otel.Tracer("kartta/scan"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.sem = semaphore.NewWeighted(int64(o.concurrency))
	return o
}

// Concurrency returns the in-flight cap.
func (o *Orchestrator) Concurrency() int {
	return o.concurrency
}

// Scan runs one pass over targets and returns the merged snapshot.
// It returns once every target has settled or the pass deadline fires,
// whichever comes first. It never returns an error: per-target failures
// are part of the snapshot.
func (o *Orchestrator) Scan(ctx context.Context, targets []resource.Target) *inventory.Snapshot {
	started := time.Now()
	targets = dedupe(targets)

	ctx, cancel := context.WithTimeout(ctx, o.scanTimeout)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "scan.pass", trace.WithAttributes(
		attribute.Int("scan.targets", len(targets)),
	))
	defer span.End()

	// one slot per target; each task writes only its own slot
	outcomes := make([]resource.Outcome, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t resource.Target) {
			defer wg.Done()
			outcomes[i] = o.runTarget(ctx, t)
		}(i, t)
	}
	wg.Wait()

	snap := inventory.New(outcomes, started, time.Now())

	failed := len(snap.Failures())
	span.SetAttributes(
		attribute.Int("scan.records", snap.Len()),
		attribute.Int("scan.failures", failed),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, "partial snapshot")
	}

	log.Info().
		Ctx(ctx).
		Int("targets", len(targets)).
		Int("records", snap.Len()).
		Int("failures", failed).
		Bool("complete", snap.Complete()).
		Dur("duration", snap.Duration()).
		Msg("scan pass complete")

	return snap
}

func (o *Orchestrator) runTarget(ctx context.Context, t resource.Target) resource.Outcome {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "scan.target", trace.WithAttributes(
		attribute.String("cloud.region", t.Region),
		attribute.String("kartta.service", string(t.Kind)),
	))
	defer span.End()

	out := o.execute(ctx, t)

	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.Err.Kind))
		log.Warn().
			Ctx(ctx).
			Err(out.Err.Unwrap()).
			Str("target", t.String()).
			Str("error_kind", string(out.Err.Kind)).
			Msg("target failed")
	} else {
		span.SetAttributes(attribute.Int("scan.records", len(out.Records)))
		log.Debug().
			Ctx(ctx).
			Str("target", t.String()).
			Int("records", len(out.Records)).
			Dur("duration", time.Since(start)).
			Msg("target complete")
	}

	if o.recorder != nil {
		o.recorder.RecordTarget(ctx, out, time.Since(start))
	}
	return out
}

func (o *Orchestrator) execute(ctx context.Context, t resource.Target) resource.Outcome {
	adapter, ok := o.adapters.Get(t.Kind)
	if !ok {
		return failure(t, resource.Configurationf("no adapter registered for service %q", t.Kind))
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return failure(t, resource.NewError(resource.ErrKindTimeout, "waiting for scan slot", err))
	}

	tctx, cancel := context.WithTimeout(ctx, o.targetTimeout)
	defer cancel()

	// The slot is held until the adapter actually returns, so an adapter
	// that ignores cancellation keeps counting against the cap.
	var state atomic.Int32 // running, finished or abandoned
	marked := make(chan struct{})
	done := make(chan resource.Outcome, 1)
	go func() {
		defer o.sem.Release(1)
		out := collect(tctx, adapter, t)
		if !state.CompareAndSwap(running, finished) {
			<-marked
			log.Warn().Str("target", t.String()).Msg("abandoned adapter returned, scan slot released")
			o.recordAbandoned(ctx, t, -1)
		}
		done <- out
	}()

	select {
	case out := <-done:
		return out
	case <-tctx.Done():
		if !state.CompareAndSwap(running, abandoned) {
			return <-done
		}
		log.Warn().
			Str("target", t.String()).
			Dur("timeout", o.targetTimeout).
			Msg("adapter ignored cancellation, abandoning it while it holds a scan slot")
		o.recordAbandoned(ctx, t, 1)
		close(marked)
		return failure(t, resource.NewError(resource.ErrKindTimeout, "list", tctx.Err()))
	}
}

const (
	running int32 = iota
	finished
	abandoned
)

func (o *Orchestrator) recordAbandoned(ctx context.Context, t resource.Target, delta int64) {
	if o.recorder != nil {
		o.recorder.RecordAbandoned(context.WithoutCancel(ctx), t, delta)
	}
}

// collect drains the adapter's sequence inside a failure boundary.
func collect(ctx context.Context, adapter plugin.Adapter, t resource.Target) (out resource.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("target", t.String()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("adapter panicked")
			out = failure(t, resource.NewError(resource.ErrKindInternal, "adapter panic", fmt.Errorf("%v", r)))
		}
	}()

	var records []resource.Record
	for rec, err := range adapter.List(ctx, t.Region) {
		if err != nil {
			return failure(t, classify(ctx, err))
		}
		if rec.Region == "" {
			rec.Region = t.Region
		}
		if rec.Kind == "" {
			rec.Kind = t.Kind
		}
		if rec.Target() != t {
			log.Warn().
				Str("target", t.String()).
				Str("record_target", rec.Target().String()).
				Str("id", rec.ID).
				Msg("dropping record outside its target")
			continue
		}
		records = append(records, rec)
	}

	// a sequence that stops quietly on cancellation is still incomplete
	if err := ctx.Err(); err != nil {
		return failure(t, classify(ctx, err))
	}
	return resource.Outcome{Target: t, Records: records}
}

func classify(ctx context.Context, err error) *resource.Error {
	var e *resource.Error
	if errors.As(err, &e) {
		return e
	}
	// wrapped sentinels such as fmt.Errorf("...: %w", resource.ErrAuth)
	if k := resource.KindOf(err); k != resource.ErrKindInternal {
		return resource.NewError(k, "list", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return resource.NewError(resource.ErrKindTimeout, "list", err)
	}
	if errors.Is(err, context.Canceled) {
		return resource.NewError(resource.ErrKindTimeout, "list", err)
	}
	return resource.NewError(resource.ErrKindInternal, "list", err)
}

func failure(t resource.Target, err *resource.Error) resource.Outcome {
	return resource.Outcome{Target: t, Err: err.WithTarget(t)}
}

func dedupe(targets []resource.Target) []resource.Target {
	seen := make(map[resource.Target]struct{}, len(targets))
	out := make([]resource.Target, 0, len(targets))
	for _, t := range targets {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
