package domain

import "context"

// Frame is the wire unit delivered to clients: a destination string plus the
// event payload. Clients route on the destination.
type Frame struct {
	Destination string `json:"destination"`
	Payload     any    `json:"payload"`
}

// Pusher delivers frames over the transport layer.
//
// SendToUser targets every live connection of one user; Publish targets all
// subscribers of a shared destination (legacy family broadcasts, DM topics).
// Both are best-effort: an error means no connection accepted the frame.
type Pusher interface {
	SendToUser(ctx context.Context, userID int64, destination string, payload any) error
	Publish(ctx context.Context, destination string, payload any) error
}

// ConnectionRegistry is the transport layer's own ground-truth view of
// connected users, reconciled against the session registry by the health
// monitor.
type ConnectionRegistry interface {
	ConnectedUserCount(ctx context.Context) (int, error)
}
