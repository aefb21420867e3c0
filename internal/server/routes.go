package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Realtime transports
	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.POST("/poll", s.handlePollOpen)
	s.echo.GET("/poll/:id", s.handlePollDrain)
	s.echo.DELETE("/poll/:id", s.handlePollClose)

	// Internal event API (trusted network, called by upstream domain services)
	s.echo.POST("/internal/events/family-message", s.handleFamilyMessage)
	s.echo.POST("/internal/events/new-message", s.handleNewMessage)
	s.echo.POST("/internal/events/comment", s.handleComment)
	s.echo.POST("/internal/events/reaction", s.handleReaction)
	s.echo.POST("/internal/events/comment-count", s.handleCommentCount)
	s.echo.POST("/internal/events/dm", s.handleDMMessage)
	s.echo.POST("/internal/events/invitation", s.handleInvitation)

	// Admin
	s.echo.GET("/admin/sessions/stats", s.handleSessionStats)
	s.echo.POST("/admin/sessions/cleanup/:userID", s.handleForceCleanup)
}
