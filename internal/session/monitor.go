package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

// errorStats is the slice of the transport error classifier the monitor reads.
type errorStats interface {
	Snapshot() domain.TransportErrorSnapshot
}

// Monitor periodically reconciles the transport layer's own view of connected
// users against internally tracked sessions. Drift beyond the threshold means
// disconnect events are being missed, which on lossy mobile networks happens
// when the transport drops a connection without firing a close.
type Monitor struct {
	registry  *Registry
	external  domain.ConnectionRegistry
	errors    errorStats
	threshold int
	interval  time.Duration
	clock     clockwork.Clock
	stopCh    chan struct{}
}

// NewMonitor creates the health reconciliation job. errors may be nil.
func NewMonitor(registry *Registry, external domain.ConnectionRegistry, errors errorStats, threshold int, interval time.Duration, clock clockwork.Clock) *Monitor {
	return &Monitor{
		registry:  registry,
		external:  external,
		errors:    errors,
		threshold: threshold,
		interval:  interval,
		clock:     clock,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the reconciliation loop until Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.check(ctx)
		case <-m.stopCh:
			slog.Info("Health monitor stopped")
			return
		case <-ctx.Done():
			slog.Info("Health monitor context cancelled")
			return
		}
	}
}

// Stop gracefully stops the reconciliation loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) check(ctx context.Context) {
	internal := m.registry.ActiveCount()

	externalCount, err := m.external.ConnectedUserCount(ctx)
	if err != nil {
		slog.Warn("Health check skipped: external registry unavailable", "error", err)
		return
	}

	drift := int64(externalCount) - internal
	if drift < 0 {
		drift = -drift
	}
	metrics.SessionDrift.Set(float64(drift))

	if drift > int64(m.threshold) {
		metrics.SessionDriftWarningsTotal.Inc()
		slog.Warn("Session drift detected: disconnect events may be lost",
			"external_users", externalCount,
			"tracked_sessions", internal,
			"drift", drift,
			"threshold", m.threshold,
		)
	}

	oldest := m.registry.OldestSessionAge()
	metrics.OldestSessionAgeSeconds.Set(oldest.Seconds())

	attrs := []any{
		"external_users", externalCount,
		"tracked_sessions", internal,
		"oldest_session_age", oldest,
	}
	if m.errors != nil {
		snap := m.errors.Snapshot()
		attrs = append(attrs,
			"benign_resets", snap.BenignResets,
			"transport_faults", snap.Faults,
		)
	}
	slog.Debug("Health check complete", attrs...)
}
