package domain

import "errors"

var (
	ErrTooManyConnections = errors.New("too many connections for user")
	ErrHubStopped         = errors.New("hub stopped")
	ErrNoRecipient        = errors.New("no connection accepted the frame")
)
