// Package emitter publishes inventory snapshots to outside backends.
package emitter

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/internal/inventory"
)

// Emitter outputs published snapshots to a backend.
type Emitter interface {
	// Emit sends a snapshot to the backend.
	Emit(ctx context.Context, snap *inventory.Snapshot) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters. A failing backend does not stop the rest;
// errors are joined.
func (m *MultiEmitter) Emit(ctx context.Context, snap *inventory.Snapshot) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogEmitter writes a summary line per snapshot.
type LogEmitter struct{}

// Emit logs the snapshot summary and each failed target.
func (LogEmitter) Emit(_ context.Context, snap *inventory.Snapshot) error {
	for _, f := range snap.Failures() {
		log.Warn().
			Str("region", f.Target.Region).
			Str("kind", string(f.Target.Kind)).
			Str("error", string(f.Kind)).
			Msg(f.Message)
	}

	ev := log.Info()
	if snap.Partial() {
		ev = log.Warn()
	}
	ev.Int("targets", len(snap.Targets())).
		Int("records", snap.Len()).
		Int("failures", len(snap.Failures())).
		Bool("complete", snap.Complete()).
		Dur("duration", snap.Duration()).
		Msg("snapshot published")
	return nil
}

// Close is a no-op.
func (LogEmitter) Close() error {
	return nil
}
