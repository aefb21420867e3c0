package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/anthonypate54/familynest-backend-sub002/internal/adapter/postgres"
	"github.com/anthonypate54/familynest-backend-sub002/internal/adapter/presence"
	"github.com/anthonypate54/familynest-backend-sub002/internal/config"
	"github.com/anthonypate54/familynest-backend-sub002/internal/fanout"
	"github.com/anthonypate54/familynest-backend-sub002/internal/platform/logging"
	"github.com/anthonypate54/familynest-backend-sub002/internal/platform/retry"
	"github.com/anthonypate54/familynest-backend-sub002/internal/prefs"
	"github.com/anthonypate54/familynest-backend-sub002/internal/server"
	"github.com/anthonypate54/familynest-backend-sub002/internal/session"
	"github.com/anthonypate54/familynest-backend-sub002/internal/transport"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupPolicy(name string) retry.Policy {
	return retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Startup dependency not ready, retrying",
				"dependency", name, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := retry.Do(ctx, startupPolicy("postgres"), func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := retry.Do(ctx, startupPolicy("redis"), func() (*goredis.Client, error) {
		return presence.NewClient(ctx, cfg.RedisURL)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, hub *transport.Hub, reaper *session.Reaper, monitor *session.Monitor) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		reaper.Stop()
		monitor.Stop()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	presenceReg := presence.NewRegistry(redisClient, clock)

	hub := transport.NewHub(clock, cfg.MaxConnsPerUser)
	registry := session.NewRegistry(clock, hub, presenceReg)

	resolver := prefs.NewResolver(postgres.NewPreferenceRepo(pool))
	broadcaster := fanout.NewBroadcaster(
		postgres.NewMembershipRepo(pool),
		resolver,
		postgres.NewReadStatusRepo(pool),
		hub,
		clock,
	)

	classifier := transport.NewErrorClassifier()

	srv := server.NewServer(cfg, registry, hub, broadcaster, classifier, presenceReg, pool, presenceReg)

	// The reaper drops registry entries; the server's hook releases the
	// transport side of reaped long-poll sessions.
	reaper := session.NewReaper(registry, cfg.SessionTimeout, cfg.ReaperInterval, clock, srv.ReleaseSession)
	monitor := session.NewMonitor(registry, presenceReg, classifier, cfg.DriftThreshold, cfg.MonitorInterval, clock)
	go reaper.Start(context.Background())
	go monitor.Start(context.Background())

	done := runGracefulShutdown(srv, hub, reaper, monitor)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
