// Package server exposes the HTTP surface: the websocket endpoint, the
// long-poll fallback, the internal event API used by upstream services, and
// the admin and observability endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/anthonypate54/familynest-backend-sub002/internal/config"
	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
	apperrors "github.com/anthonypate54/familynest-backend-sub002/internal/errors"
	"github.com/anthonypate54/familynest-backend-sub002/internal/fanout"
	"github.com/anthonypate54/familynest-backend-sub002/internal/transport"
)

// presenceRegistry is the transport-level presence adapter the server feeds on
// connect/disconnect. Errors are logged, never surfaced to clients.
type presenceRegistry interface {
	Register(ctx context.Context, userID int64) error
	Unregister(ctx context.Context, userID int64) error
}

// pinger is the minimal health-check surface of a backing store.
type pinger interface {
	Ping(ctx context.Context) error
}

type pollSession struct {
	client *transport.PollClient
	userID int64
}

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	registry    domain.SessionStore
	hub         *transport.Hub
	broadcaster *fanout.Broadcaster
	classifier  *transport.ErrorClassifier
	presence    presenceRegistry
	pgPing      pinger
	redisPing   pinger
	startTime   time.Time

	pollMu sync.Mutex
	polls  map[uuid.UUID]*pollSession
}

func NewServer(
	cfg *config.Config,
	registry domain.SessionStore,
	hub *transport.Hub,
	broadcaster *fanout.Broadcaster,
	classifier *transport.ErrorClassifier,
	presence presenceRegistry,
	pgPing, redisPing pinger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		registry:    registry,
		hub:         hub,
		broadcaster: broadcaster,
		classifier:  classifier,
		presence:    presence,
		pgPing:      pgPing,
		redisPing:   redisPing,
		startTime:   time.Now(),
		polls:       make(map[uuid.UUID]*pollSession),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
