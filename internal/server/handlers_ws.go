package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	apperrors "github.com/anthonypate54/familynest-backend-sub002/internal/errors"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // mobile clients send no Origin header
	},
}

// clientFrame is the inbound wire format. Clients send heartbeat pings and
// explicit subscriptions for shared destinations.
type clientFrame struct {
	Type        string `json:"type"`
	Destination string `json:"destination,omitempty"`
}

func (s *Server) handleWebSocket(c echo.Context) error {
	userID, err := strconv.ParseInt(c.QueryParam("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return apperrors.ValidationError("user_id query parameter required")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "user_id", userID, "error", err)
		return nil
	}

	sessionID := uuid.New()
	if err := s.hub.Attach(userID, conn, func() { s.registry.Touch(sessionID) }); err != nil {
		// Hub already closed the connection on rejection.
		slog.Warn("WebSocket attach rejected", "user_id", userID, "error", err)
		return nil
	}
	s.registry.Connect(sessionID, userID)

	ctx := c.Request().Context()
	if err := s.presence.Register(ctx, userID); err != nil {
		metrics.PresenceErrors.Inc()
		slog.Warn("Presence register failed", "user_id", userID, "error", err)
	}

	slog.Info("WebSocket connected", "user_id", userID, "session_id", sessionID)
	s.readPump(ctx, conn, sessionID, userID)

	s.hub.Detach(conn)
	s.registry.Disconnect(sessionID)
	if err := s.presence.Unregister(context.WithoutCancel(ctx), userID); err != nil {
		metrics.PresenceErrors.Inc()
		slog.Warn("Presence unregister failed", "user_id", userID, "error", err)
	}
	return nil
}

// readPump blocks until the connection drops. Every inbound frame counts as
// session activity; heartbeats additionally get a pong reply.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, sessionID uuid.UUID, userID int64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.classifier.RecordDisconnect(closeErr.Code)
			} else {
				s.classifier.Classify(err)
			}
			return
		}

		s.registry.Touch(sessionID)

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("Unparseable client frame, ignoring", "user_id", userID, "error", err)
			continue
		}

		switch frame.Type {
		case "PING":
			s.registry.HandlePing(ctx, sessionID, userID)
		case "SUBSCRIBE":
			if frame.Destination == "" {
				continue
			}
			if err := s.hub.Subscribe(conn, frame.Destination); err != nil {
				slog.Warn("Subscribe failed", "user_id", userID, "destination", frame.Destination, "error", err)
			}
		default:
			slog.Debug("Unknown client frame type", "user_id", userID, "type", frame.Type)
		}
	}
}
