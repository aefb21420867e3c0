// Package presence keeps a Redis-backed view of connected users, the ground
// truth the health monitor reconciles the in-memory session registry against.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

const (
	connsKey = "presence:conns"
	seenKey  = "presence:seen"

	// freshnessWindow bounds how stale a presence entry may be before it is
	// ignored. Entries outlive crashed instances; the window keeps the count
	// honest without a cleanup job.
	freshnessWindow = 90 * time.Second
)

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Registry counts live connections per user in a shared hash, with a
// last-seen timestamp per user for freshness filtering.
type Registry struct {
	client *redis.Client
	clock  clockwork.Clock
}

var _ domain.ConnectionRegistry = (*Registry)(nil)

func NewRegistry(client *redis.Client, clock clockwork.Clock) *Registry {
	return &Registry{client: client, clock: clock}
}

// Register records one new connection for userID.
func (r *Registry) Register(ctx context.Context, userID int64) error {
	field := strconv.FormatInt(userID, 10)

	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, connsKey, field, 1)
	pipe.HSet(ctx, seenKey, field, r.clock.Now().Unix())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register presence: %w", err)
	}
	return nil
}

// Unregister records one dropped connection. The user's entry is removed once
// their connection count reaches zero.
func (r *Registry) Unregister(ctx context.Context, userID int64) error {
	field := strconv.FormatInt(userID, 10)

	remaining, err := r.client.HIncrBy(ctx, connsKey, field, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to unregister presence: %w", err)
	}
	if remaining <= 0 {
		pipe := r.client.Pipeline()
		pipe.HDel(ctx, connsKey, field)
		pipe.HDel(ctx, seenKey, field)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear presence entry: %w", err)
		}
	}
	return nil
}

// ConnectedUserCount returns the number of distinct users with at least one
// connection and a fresh last-seen timestamp.
func (r *Registry) ConnectedUserCount(ctx context.Context) (int, error) {
	conns, err := r.client.HGetAll(ctx, connsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read presence conns: %w", err)
	}
	seen, err := r.client.HGetAll(ctx, seenKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read presence timestamps: %w", err)
	}

	cutoff := r.clock.Now().Add(-freshnessWindow).Unix()
	count := 0
	for field, raw := range conns {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			continue
		}
		ts, err := strconv.ParseInt(seen[field], 10, 64)
		if err != nil || ts < cutoff {
			continue
		}
		count++
	}

	metrics.PresenceRegisteredUsers.Set(float64(count))
	return count, nil
}

// Ping reports backend reachability for readiness checks.
func (r *Registry) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}
