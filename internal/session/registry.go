// Package session tracks live client connections and runs the periodic jobs
// that keep the tracked state honest: the stale-session reaper and the health
// monitor.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

type sessionMeta struct {
	userID      int64
	connectedAt time.Time
}

// Registry is the in-process domain.SessionStore implementation.
//
// Connection events arrive concurrently on transport goroutines; contention is
// per-key, so the registry uses sync.Map and atomic counters instead of one
// coarse lock that would serialize unrelated connects and disconnects.
// Single-instance only: state lives in process memory.
type Registry struct {
	clock    clockwork.Clock
	pusher   domain.Pusher
	external domain.ConnectionRegistry

	activity sync.Map // uuid.UUID -> time.Time (last activity)
	meta     sync.Map // uuid.UUID -> sessionMeta

	active  atomic.Int64
	created atomic.Int64
}

var _ domain.SessionStore = (*Registry)(nil)

// NewRegistry creates a session registry. external may be nil; Stats then
// reports -1 external users.
func NewRegistry(clock clockwork.Clock, pusher domain.Pusher, external domain.ConnectionRegistry) *Registry {
	return &Registry{
		clock:    clock,
		pusher:   pusher,
		external: external,
	}
}

// Connect starts tracking a session. userID may be zero for connections that
// have not authenticated yet.
func (r *Registry) Connect(sessionID uuid.UUID, userID int64) {
	now := r.clock.Now()
	r.activity.Store(sessionID, now)
	r.meta.Store(sessionID, sessionMeta{userID: userID, connectedAt: now})
	r.active.Add(1)
	r.created.Add(1)
	metrics.SessionsActive.Set(float64(r.active.Load()))
	metrics.SessionsCreatedTotal.Inc()
	slog.Debug("Session connected", "session_id", sessionID.String(), "user_id", userID)
}

// Disconnect stops tracking a session. Unknown sessions are a no-op, so a
// duplicate close event never corrupts the counters.
func (r *Registry) Disconnect(sessionID uuid.UUID) {
	if _, known := r.activity.LoadAndDelete(sessionID); !known {
		return
	}
	r.meta.Delete(sessionID)
	r.active.Add(-1)
	metrics.SessionsActive.Set(float64(r.active.Load()))
	slog.Debug("Session disconnected", "session_id", sessionID.String())
}

// Touch refreshes the last-activity timestamp of a known session. The CAS
// loop never re-creates an entry a concurrent Disconnect removed; a plain
// Store here would resurrect the session and the next sweep would decrement
// the active counter a second time.
func (r *Registry) Touch(sessionID uuid.UUID) {
	now := r.clock.Now()
	for {
		old, known := r.activity.Load(sessionID)
		if !known {
			return
		}
		if r.activity.CompareAndSwap(sessionID, old, now) {
			return
		}
	}
}

// HandlePing records activity and answers with a pong on the user's private
// queue. A failed pong send is logged, never propagated: heartbeats must not
// take down the read loop.
func (r *Registry) HandlePing(ctx context.Context, sessionID uuid.UUID, userID int64) {
	r.Touch(sessionID)

	pong := map[string]any{
		"type":      "PONG",
		"timestamp": r.clock.Now().UnixMilli(),
	}
	if err := r.pusher.SendToUser(ctx, userID, domain.UserPongDest(userID), pong); err != nil {
		metrics.PongSendFailures.Inc()
		slog.Debug("Pong send failed", "session_id", sessionID.String(), "user_id", userID, "error", err)
	}
}

// Stats returns a snapshot of registry state plus the external registry's
// connected-user count (-1 when unavailable).
func (r *Registry) Stats(ctx context.Context) domain.SessionStats {
	tracked := 0
	r.activity.Range(func(_, _ any) bool {
		tracked++
		return true
	})

	externalUsers := -1
	if r.external != nil {
		if n, err := r.external.ConnectedUserCount(ctx); err == nil {
			externalUsers = n
		} else {
			slog.Warn("External connection registry unavailable", "error", err)
		}
	}

	return domain.SessionStats{
		Active:          r.active.Load(),
		LifetimeCreated: r.created.Load(),
		Tracked:         tracked,
		ExternalUsers:   externalUsers,
	}
}

// ForceCleanupUser removes every session belonging to userID and returns how
// many were removed. Used for administrative logout-everywhere.
func (r *Registry) ForceCleanupUser(userID int64) int {
	var victims []uuid.UUID
	r.meta.Range(func(key, value any) bool {
		if value.(sessionMeta).userID == userID {
			victims = append(victims, key.(uuid.UUID))
		}
		return true
	})

	for _, id := range victims {
		r.Disconnect(id)
	}
	if len(victims) > 0 {
		metrics.SessionsForceCleanedTotal.Add(float64(len(victims)))
		slog.Info("Forced session cleanup", "user_id", userID, "removed", len(victims))
	}
	return len(victims)
}

// SweepStale removes every session whose last activity is before cutoff and
// returns the evicted session IDs so transports can release their side. One
// pass over the activity map; cost is bounded by concurrent connection count,
// not event volume.
func (r *Registry) SweepStale(cutoff time.Time) []uuid.UUID {
	var stale []uuid.UUID
	r.activity.Range(func(key, value any) bool {
		if value.(time.Time).Before(cutoff) {
			stale = append(stale, key.(uuid.UUID))
		}
		return true
	})

	for _, id := range stale {
		r.Disconnect(id)
	}
	return stale
}

// OldestSessionAge returns the age of the longest-lived tracked session, or
// zero when nothing is tracked. A steadily growing value with low traffic is a
// leak signal.
func (r *Registry) OldestSessionAge() time.Duration {
	now := r.clock.Now()
	var oldest time.Duration
	r.meta.Range(func(_, value any) bool {
		if age := now.Sub(value.(sessionMeta).connectedAt); age > oldest {
			oldest = age
		}
		return true
	})
	return oldest
}

// ActiveCount returns the current active-session counter.
func (r *Registry) ActiveCount() int64 {
	return r.active.Load()
}
