package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/escrowhub/backend/internal/infrastructure/cache"
	"github.com/escrowhub/backend/internal/infrastructure/config"
)

func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return config.RedisConfig{Host: host, Port: port.Int()}
}

func TestRedisIdempotencyStore_SharedBetweenReplicas(t *testing.T) {
	cfg := startRedis(t)
	ctx := context.Background()
	opts := cache.StoreOptions{Logger: zaptest.NewLogger(t), RequireRedis: true}

	a, err := cache.OpenIdempotencyStore(ctx, cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := cache.OpenIdempotencyStore(ctx, cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.IsType(t, &cache.RedisIdempotencyStore{}, a)

	first, err := a.Claim(ctx, "webhook:evt_shared", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = b.Claim(ctx, "webhook:evt_shared", time.Minute)
	require.NoError(t, err)
	assert.False(t, first, "second replica sees the first replica's claim")

	seen, err := b.Seen(ctx, "webhook:evt_shared")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, a.Forget(ctx, "webhook:evt_shared"))
	first, err = b.Claim(ctx, "webhook:evt_shared", time.Minute)
	require.NoError(t, err)
	assert.True(t, first, "forgotten key is claimable again")
}

func TestRedisIdempotencyStore_KeyExpires(t *testing.T) {
	cfg := startRedis(t)
	ctx := context.Background()

	store, err := cache.DialRedisIdempotencyStore(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Ping(ctx))

	_, err = store.Claim(ctx, "sweep:window", 100*time.Millisecond)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		seen, err := store.Seen(ctx, "sweep:window")
		return err == nil && !seen
	}, 5*time.Second, 50*time.Millisecond)
}
