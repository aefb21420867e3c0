package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is one live client connection. A session maps to at most one user;
// a user may hold many concurrent sessions (multi-device).
type Session struct {
	ID           uuid.UUID
	UserID       int64 // zero until authenticated
	ConnectedAt  time.Time
	LastActivity time.Time
}

// SessionStats is a point-in-time snapshot of registry state.
type SessionStats struct {
	Active          int64 `json:"active"`
	LifetimeCreated int64 `json:"lifetime_created"`
	Tracked         int   `json:"tracked"`
	ExternalUsers   int   `json:"external_users"`
}

// SessionStore is the capability interface over live-connection tracking.
// The in-process implementation is single-instance only; a distributed
// backing store can replace it without touching fan-out or the periodic jobs.
//
// All operations are safe for concurrent use and never fail: operations on an
// unknown session are no-ops.
type SessionStore interface {
	Connect(sessionID uuid.UUID, userID int64)
	Disconnect(sessionID uuid.UUID)
	Touch(sessionID uuid.UUID)
	HandlePing(ctx context.Context, sessionID uuid.UUID, userID int64)
	Stats(ctx context.Context) SessionStats
	ForceCleanupUser(userID int64) int
}
