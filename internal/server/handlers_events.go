package server

import (
	"encoding/json"

	"github.com/labstack/echo/v4"

	apperrors "github.com/anthonypate54/familynest-backend-sub002/internal/errors"
)

// The event API always answers 202 on accepted events: fan-out is best-effort
// and its partial failures never become caller failures. The delivered count
// is returned for observability only.

type familyEventRequest struct {
	SenderID int64           `json:"senderId"`
	FamilyID int64           `json:"familyId"`
	Payload  json.RawMessage `json:"payload"`
}

type commentEventRequest struct {
	SenderID        int64           `json:"senderId"`
	FamilyID        int64           `json:"familyId"`
	ParentMessageID int64           `json:"parentMessageId"`
	Payload         json.RawMessage `json:"payload"`
}

type commentCountRequest struct {
	FamilyID      int64 `json:"familyId"`
	MessageID     int64 `json:"messageId"`
	Count         int   `json:"count"`
	ExcludeUserID int64 `json:"excludeUserId"`
}

type dmEventRequest struct {
	SenderID    int64           `json:"senderId"`
	RecipientID int64           `json:"recipientId"`
	Payload     json.RawMessage `json:"payload"`
}

type invitationEventRequest struct {
	UserID  int64           `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

func accepted(c echo.Context, delivered int) error {
	return c.JSON(202, map[string]int{"delivered": delivered})
}

func badRequest(_ echo.Context, msg string) error {
	return apperrors.ValidationError(msg)
}

func (s *Server) handleFamilyMessage(c echo.Context) error {
	var req familyEventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SenderID <= 0 || req.FamilyID <= 0 {
		return badRequest(c, "senderId and familyId are required")
	}
	delivered := s.broadcaster.BroadcastFamilyMessage(c.Request().Context(), req.SenderID, req.FamilyID, req.Payload)
	return accepted(c, delivered)
}

func (s *Server) handleNewMessage(c echo.Context) error {
	var req familyEventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SenderID <= 0 || req.FamilyID <= 0 {
		return badRequest(c, "senderId and familyId are required")
	}
	delivered := s.broadcaster.BroadcastNewMessage(c.Request().Context(), req.SenderID, req.FamilyID, req.Payload)
	return accepted(c, delivered)
}

func (s *Server) handleComment(c echo.Context) error {
	var req commentEventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SenderID <= 0 || req.FamilyID <= 0 || req.ParentMessageID <= 0 {
		return badRequest(c, "senderId, familyId and parentMessageId are required")
	}
	delivered := s.broadcaster.BroadcastComment(c.Request().Context(), req.SenderID, req.FamilyID, req.ParentMessageID, req.Payload)
	return accepted(c, delivered)
}

func (s *Server) handleReaction(c echo.Context) error {
	var req familyEventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SenderID <= 0 || req.FamilyID <= 0 {
		return badRequest(c, "senderId and familyId are required")
	}
	delivered := s.broadcaster.BroadcastReaction(c.Request().Context(), req.SenderID, req.FamilyID, req.Payload)
	return accepted(c, delivered)
}

func (s *Server) handleCommentCount(c echo.Context) error {
	var req commentCountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.FamilyID <= 0 || req.MessageID <= 0 {
		return badRequest(c, "familyId and messageId are required")
	}
	delivered := s.broadcaster.BroadcastCommentCount(c.Request().Context(), req.FamilyID, req.MessageID, req.Count, req.ExcludeUserID)
	return accepted(c, delivered)
}

func (s *Server) handleDMMessage(c echo.Context) error {
	var req dmEventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SenderID <= 0 || req.RecipientID <= 0 {
		return badRequest(c, "senderId and recipientId are required")
	}
	delivered := s.broadcaster.BroadcastDMMessage(c.Request().Context(), req.SenderID, req.RecipientID, req.Payload)
	return accepted(c, delivered)
}

func (s *Server) handleInvitation(c echo.Context) error {
	var req invitationEventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID <= 0 {
		return badRequest(c, "userId is required")
	}
	delivered := s.broadcaster.BroadcastInvitation(c.Request().Context(), req.UserID, req.Payload)
	return accepted(c, delivered)
}
