// Package daemon keeps the inventory warm by refreshing it on an interval.
package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/internal/inventory"
)

// Health states reported by Health.
const (
	StatusStarting = "starting"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Refresher produces a full-matrix snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (*inventory.Snapshot, error)
}

// Config holds daemon configuration
type Config struct {
	// Interval between refreshes. Zero disables the loop.
	Interval time.Duration

	// Metrics is optional.
	Metrics *DaemonMetrics
}

// Daemon manages continuous refreshes
type Daemon struct {
	interval  time.Duration
	refresher Refresher
	metrics   *DaemonMetrics
	startTime time.Time

	scans atomic.Int64

	mu       sync.RWMutex
	lastScan time.Time
	partial  bool
	lastErr  error
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg Config, refresher Refresher) (*Daemon, error) {
	if refresher == nil {
		return nil, errors.New("daemon: nil refresher")
	}
	if cfg.Interval < 0 {
		return nil, errors.New("daemon: negative interval")
	}
	return &Daemon{
		interval:  cfg.Interval,
		refresher: refresher,
		metrics:   cfg.Metrics,
		startTime: time.Now(),
	}, nil
}

// Start runs an initial refresh and then one per interval until ctx is
// done. With a zero interval it only waits for ctx.
func (d *Daemon) Start(ctx context.Context) error {
	if d.interval == 0 {
		log.Info().Msg("background refresh disabled")
		<-ctx.Done()
		return nil
	}

	log.Info().Dur("interval", d.interval).Msg("background refresh started")
	d.runRefresh(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runRefresh(ctx)
		}
	}
}

func (d *Daemon) runRefresh(ctx context.Context) {
	start := time.Now()
	snap, err := d.refresher.Refresh(ctx)
	elapsed := time.Since(start)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case snap.Partial():
		status = "partial"
	}

	d.scans.Add(1)
	d.mu.Lock()
	d.lastErr = err
	if err == nil {
		d.lastScan = snap.Timestamp()
		d.partial = snap.Partial()
	}
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.RecordRefresh(ctx, status, elapsed)
		if err == nil {
			d.metrics.RecordSnapshot(ctx, snap)
		}
	}

	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("refresh failed")
		}
		return
	}
	log.Debug().
		Str("status", status).
		Int("records", snap.Len()).
		Dur("duration", elapsed).
		Msg("refresh finished")
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status   string     `json:"status"`
	Uptime   int64      `json:"uptime"`
	LastScan *time.Time `json:"last_scan,omitempty"`
	Scans    int64      `json:"scans"`
	Error    string     `json:"error,omitempty"`
}

// Health returns daemon health status. A daemon with the loop disabled
// reports healthy since it serves on demand.
func (d *Daemon) Health() HealthStatus {
	h := HealthStatus{
		Status: StatusHealthy,
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Scans:  d.scans.Load(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.lastScan.IsZero() {
		ts := d.lastScan
		h.LastScan = &ts
	}
	switch {
	case d.lastErr != nil:
		h.Status = StatusDegraded
		h.Error = d.lastErr.Error()
	case d.partial:
		h.Status = StatusDegraded
	case d.interval > 0 && h.LastScan == nil:
		h.Status = StatusStarting
	}
	return h
}

// ScanCount returns total refreshes run
func (d *Daemon) ScanCount() int64 {
	return d.scans.Load()
}
