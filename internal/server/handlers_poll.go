package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "github.com/anthonypate54/familynest-backend-sub002/internal/errors"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
	"github.com/anthonypate54/familynest-backend-sub002/internal/transport"
)

// Long-poll fallback for clients that cannot hold a websocket (restrictive
// proxies, some webviews). A poll session is a first-class session: it is
// tracked in the registry, reaped on inactivity, and fed by the hub like any
// websocket connection.

type pollOpenRequest struct {
	UserID        int64    `json:"userId"`
	Subscriptions []string `json:"subscriptions,omitempty"`
}

func (s *Server) handlePollOpen(c echo.Context) error {
	var req pollOpenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID <= 0 {
		return badRequest(c, "userId is required")
	}

	pc := transport.NewPollClient()
	if err := s.hub.AttachPoll(req.UserID, pc); err != nil {
		slog.Warn("Poll attach rejected", "user_id", req.UserID, "error", err)
		return apperrors.RateLimitedError("connection limit reached").WithContext("user_id", req.UserID)
	}
	for _, dest := range req.Subscriptions {
		if err := s.hub.SubscribePoll(pc, dest); err != nil {
			slog.Warn("Poll subscribe failed", "user_id", req.UserID, "destination", dest, "error", err)
		}
	}

	sessionID := uuid.New()
	s.registry.Connect(sessionID, req.UserID)
	if err := s.presence.Register(c.Request().Context(), req.UserID); err != nil {
		metrics.PresenceErrors.Inc()
		slog.Warn("Presence register failed", "user_id", req.UserID, "error", err)
	}

	s.pollMu.Lock()
	s.polls[sessionID] = &pollSession{client: pc, userID: req.UserID}
	s.pollMu.Unlock()
	metrics.LongPollSessionsCurrent.Inc()

	slog.Info("Long-poll session opened", "user_id", req.UserID, "session_id", sessionID)
	return c.JSON(201, map[string]string{"sessionId": sessionID.String()})
}

func (s *Server) handlePollDrain(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	s.pollMu.Lock()
	ps, ok := s.polls[sessionID]
	s.pollMu.Unlock()
	if !ok {
		return apperrors.NotFoundError("unknown poll session")
	}

	// Each drain request is client activity.
	s.registry.Touch(sessionID)

	frames := ps.client.Drain(c.Request().Context(), s.config.PollWait)
	out := make([]json.RawMessage, 0, len(frames))
	for _, f := range frames {
		out = append(out, json.RawMessage(f))
	}
	return c.JSON(200, map[string]any{"frames": out})
}

func (s *Server) handlePollClose(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	s.pollMu.Lock()
	ps, ok := s.polls[sessionID]
	delete(s.polls, sessionID)
	s.pollMu.Unlock()
	if !ok {
		return apperrors.NotFoundError("unknown poll session")
	}

	s.hub.DetachPoll(ps.client)
	s.registry.Disconnect(sessionID)
	metrics.LongPollSessionsCurrent.Dec()
	if err := s.presence.Unregister(context.WithoutCancel(c.Request().Context()), ps.userID); err != nil {
		metrics.PresenceErrors.Inc()
		slog.Warn("Presence unregister failed", "user_id", ps.userID, "error", err)
	}

	slog.Info("Long-poll session closed", "user_id", ps.userID, "session_id", sessionID)
	return c.NoContent(204)
}

// ReleaseSession frees the transport side of a session the registry has
// already dropped. Wired as the reaper's eviction hook: a reaped long-poll
// session must also leave the hub, the poll table, presence, and the gauge.
// WebSocket sessions clean up in their own handler, so unknown IDs are a
// no-op.
func (s *Server) ReleaseSession(sessionID uuid.UUID) {
	s.pollMu.Lock()
	ps, ok := s.polls[sessionID]
	delete(s.polls, sessionID)
	s.pollMu.Unlock()
	if !ok {
		return
	}

	s.hub.DetachPoll(ps.client)
	metrics.LongPollSessionsCurrent.Dec()
	if err := s.presence.Unregister(context.Background(), ps.userID); err != nil {
		metrics.PresenceErrors.Inc()
		slog.Warn("Presence unregister failed", "user_id", ps.userID, "error", err)
	}
	slog.Info("Long-poll session reaped", "user_id", ps.userID, "session_id", sessionID)
}

// --- Admin handlers ---

func (s *Server) handleSessionStats(c echo.Context) error {
	return c.JSON(200, s.registry.Stats(c.Request().Context()))
}

func (s *Server) handleForceCleanup(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil || userID <= 0 {
		return badRequest(c, "invalid user id")
	}
	removed := s.registry.ForceCleanupUser(userID)
	slog.Info("Forced session cleanup", "user_id", userID, "removed", removed)
	return c.JSON(200, map[string]int{"removed": removed})
}
