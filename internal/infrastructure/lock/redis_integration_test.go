//go:build integration

package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/erp/stocksync/internal/domain/integration"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRunLocker(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)

	a := NewRedisRunLocker(client, "test:lock", time.Minute)
	b := NewRedisRunLocker(client, "test:lock", time.Minute)

	unlock, err := a.TryLock(ctx)
	require.NoError(t, err)

	_, err = b.TryLock(ctx)
	assert.ErrorIs(t, err, integration.ErrSyncInProgress)

	ttl, err := client.TTL(ctx, "test:lock").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	unlock()

	unlockB, err := b.TryLock(ctx)
	require.NoError(t, err)

	// A stale release from the first holder must not free b's lock.
	unlock()
	_, err = a.TryLock(ctx)
	assert.ErrorIs(t, err, integration.ErrSyncInProgress)
	unlockB()
}
