// Package query serves inventory views from cached snapshots, scanning
// on demand when the cache is stale or does not cover a request.
package query

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/yairfalse/kartta/internal/filter"
	"github.com/yairfalse/kartta/internal/inventory"
	"github.com/yairfalse/kartta/internal/scan"
	"github.com/yairfalse/kartta/pkg/resource"
)

// DefaultTTL is how long a snapshot is served before a query rescans.
const DefaultTTL = 5 * time.Minute

// Scanner runs a scan pass.
type Scanner interface {
	Scan(ctx context.Context, targets []resource.Target) *inventory.Snapshot
}

// Publisher receives every published full-matrix snapshot.
type Publisher interface {
	Emit(ctx context.Context, snap *inventory.Snapshot) error
}

// Config holds the static scan inputs and the freshness policy.
type Config struct {
	Regions []string
	Kinds   []resource.Kind
	// TTL of zero disables caching.
	TTL    time.Duration
	Filter *filter.Filter
}

// Request selects part of the inventory. Empty fields match everything.
type Request struct {
	Region string
	Kind   resource.Kind
	// Fresh bypasses the cache.
	Fresh bool
}

// Option configures a Facade.
type Option func(*Facade)

// WithPublisher sets the sink for full-matrix snapshots.
func WithPublisher(p Publisher) Option {
	return func(f *Facade) { f.publisher = p }
}

// WithClock overrides time.Now. Used for testing.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) { f.now = now }
}

// Facade answers queries against the latest snapshots.
type Facade struct {
	cfg       Config
	scanner   Scanner
	publisher Publisher
	now       func() time.Time

	// full-matrix snapshot, swapped whole
	full atomic.Pointer[inventory.Snapshot]

	mu       sync.RWMutex
	narrowed map[scan.Selector]*inventory.Snapshot

	group singleflight.Group
}

// New creates a facade. The configured matrix is validated up front.
func New(cfg Config, scanner Scanner, opts ...Option) (*Facade, error) {
	if _, err := scan.BuildMatrix(cfg.Regions, cfg.Kinds, scan.Selector{}); err != nil {
		return nil, err
	}
	if cfg.TTL < 0 {
		return nil, resource.Configurationf("query: negative ttl %s", cfg.TTL)
	}

	f := &Facade{
		cfg:      cfg,
		scanner:  scanner,
		now:      time.Now,
		narrowed: make(map[scan.Selector]*inventory.Snapshot),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Query returns the view for req. Partial snapshots are not errors;
// configuration errors (a selector outside the matrix) and the caller's
// own context error are returned.
func (f *Facade) Query(ctx context.Context, req Request) (inventory.View, error) {
	sel := scan.Selector{Region: req.Region, Kind: req.Kind}
	targets, err := scan.BuildMatrix(f.cfg.Regions, f.cfg.Kinds, sel)
	if err != nil {
		return inventory.View{}, err
	}

	if !req.Fresh {
		if snap := f.cached(targets); snap != nil {
			log.Debug().Str("selector", sel.String()).Msg("serving cached snapshot")
			return f.view(snap, sel), nil
		}
	}

	snap, err := f.scan(ctx, sel, targets)
	if err != nil {
		return inventory.View{}, err
	}
	return f.view(snap, sel), nil
}

// Refresh scans the full matrix and publishes the result.
func (f *Facade) Refresh(ctx context.Context) (*inventory.Snapshot, error) {
	targets, err := scan.BuildMatrix(f.cfg.Regions, f.cfg.Kinds, scan.Selector{})
	if err != nil {
		return nil, err
	}
	return f.scan(ctx, scan.Selector{}, targets)
}

// Current returns the latest full-matrix snapshot, or nil before the first.
func (f *Facade) Current() *inventory.Snapshot {
	return f.full.Load()
}

// Regions returns the configured regions.
func (f *Facade) Regions() []string {
	return f.cfg.Regions
}

// Kinds returns the configured kinds.
func (f *Facade) Kinds() []resource.Kind {
	return f.cfg.Kinds
}

func (f *Facade) fresh(s *inventory.Snapshot) bool {
	return s != nil && f.cfg.TTL > 0 && s.Age(f.now()) < f.cfg.TTL
}

// cached returns the newest fresh snapshot covering targets.
func (f *Facade) cached(targets []resource.Target) *inventory.Snapshot {
	var best *inventory.Snapshot
	if s := f.full.Load(); f.fresh(s) && s.Covers(targets) {
		best = s
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.narrowed {
		if !f.fresh(s) || !s.Covers(targets) {
			continue
		}
		if best == nil || s.Timestamp().After(best.Timestamp()) {
			best = s
		}
	}
	return best
}

// scan collapses concurrent misses for the same selector into one pass.
// The pass is detached from the caller: a caller that goes away stops
// waiting with its context error, and the pass still completes and
// publishes, bounded by the orchestrator's scan deadline.
func (f *Facade) scan(ctx context.Context, sel scan.Selector, targets []resource.Target) (*inventory.Snapshot, error) {
	detached := context.WithoutCancel(ctx)
	ch := f.group.DoChan(sel.String(), func() (any, error) {
		snap := f.scanner.Scan(detached, targets)
		f.publish(detached, sel, snap)
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			log.Debug().Str("selector", sel.String()).Msg("joined in-flight scan")
		}
		return res.Val.(*inventory.Snapshot), nil
	case <-ctx.Done():
		log.Debug().Str("selector", sel.String()).Msg("caller stopped waiting for scan")
		return nil, ctx.Err()
	}
}

func (f *Facade) publish(ctx context.Context, sel scan.Selector, snap *inventory.Snapshot) {
	if !sel.IsEmpty() {
		f.mu.Lock()
		f.narrowed[sel] = snap
		f.mu.Unlock()
		return
	}

	f.full.Store(snap)

	// narrowed snapshots older than the new full one are superseded
	f.mu.Lock()
	for k, s := range f.narrowed {
		if !s.Timestamp().After(snap.Timestamp()) {
			delete(f.narrowed, k)
		}
	}
	f.mu.Unlock()

	if f.publisher != nil {
		if err := f.publisher.Emit(ctx, snap); err != nil {
			log.Error().Err(err).Msg("publish snapshot failed")
		}
	}
}

func (f *Facade) view(snap *inventory.Snapshot, sel scan.Selector) inventory.View {
	q := inventory.Query{Region: sel.Region, Kind: sel.Kind}
	if !f.cfg.Filter.HasTagFilters() {
		return snap.View(q)
	}
	return snap.ViewWith(q, f.cfg.Filter.ShouldIncludeRecord)
}
