package presence

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	testRedisURL string
	redContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redContainer, err = tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := redContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
		}
	}()

	endpoint, err := redContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	os.Exit(m.Run())
}

func setupTestRegistry(t *testing.T, clock clockwork.Clock) (*Registry, *goredis.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL)
	require.NoError(t, err)
	require.NoError(t, client.FlushAll(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })

	return NewRegistry(client, clock), client
}

func TestRegistry_RegisterUnregisterCycle(t *testing.T) {
	reg, _ := setupTestRegistry(t, clockwork.NewRealClock())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, 1))
	require.NoError(t, reg.Register(ctx, 2))

	count, err := reg.ConnectedUserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, reg.Unregister(ctx, 1))

	count, err = reg.ConnectedUserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegistry_MultiDeviceCountsOnce(t *testing.T) {
	reg, _ := setupTestRegistry(t, clockwork.NewRealClock())
	ctx := context.Background()

	// Two devices, one user.
	require.NoError(t, reg.Register(ctx, 1))
	require.NoError(t, reg.Register(ctx, 1))

	count, err := reg.ConnectedUserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Still connected on the second device.
	require.NoError(t, reg.Unregister(ctx, 1))
	count, err = reg.ConnectedUserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, reg.Unregister(ctx, 1))
	count, err = reg.ConnectedUserCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegistry_StaleEntriesIgnored(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	reg, _ := setupTestRegistry(t, clock)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, 1))
	clock.Advance(2 * time.Minute)
	require.NoError(t, reg.Register(ctx, 2))

	// User 1's heartbeat is past the freshness window.
	count, err := reg.ConnectedUserCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegistry_Ping(t *testing.T) {
	reg, client := setupTestRegistry(t, clockwork.NewRealClock())
	ctx := context.Background()

	require.NoError(t, reg.Ping(ctx))

	require.NoError(t, client.Close())
	assert.Error(t, reg.Ping(ctx))
}

func TestNewClient_InvalidURL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	_, err := NewClient(context.Background(), "redis://localhost:1")
	assert.Error(t, err)
}
