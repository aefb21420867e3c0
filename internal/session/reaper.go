package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

// Reaper periodically evicts sessions idle past the configured timeout. It
// catches connections whose transport died without a close event, a common
// failure on mobile networks.
type Reaper struct {
	registry *Registry
	timeout  time.Duration
	interval time.Duration
	clock    clockwork.Clock
	onEvict  func(uuid.UUID)
	stopCh   chan struct{}
}

// NewReaper creates the stale-session sweep job. onEvict runs once per
// evicted session so transports can release their side of the connection;
// nil is allowed.
func NewReaper(registry *Registry, timeout, interval time.Duration, clock clockwork.Clock, onEvict func(uuid.UUID)) *Reaper {
	return &Reaper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		clock:    clock,
		onEvict:  onEvict,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.sweep()
		case <-r.stopCh:
			slog.Info("Session reaper stopped")
			return
		case <-ctx.Done():
			slog.Info("Session reaper context cancelled")
			return
		}
	}
}

// Stop gracefully stops the sweep loop.
func (r *Reaper) Stop() {
	close(r.stopCh)
}

func (r *Reaper) sweep() {
	cutoff := r.clock.Now().Add(-r.timeout)
	evicted := r.registry.SweepStale(cutoff)
	if len(evicted) == 0 {
		return
	}

	if r.onEvict != nil {
		for _, id := range evicted {
			r.onEvict(id)
		}
	}
	metrics.SessionsReapedTotal.Add(float64(len(evicted)))
	slog.Info("Evicted stale sessions", "evicted", len(evicted), "timeout", r.timeout)
}
