package cache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erp/stocksync/internal/infrastructure/config"
)

// closedPort returns a local port with nothing listening on it
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	cfg := config.RedisConfig{Host: "127.0.0.1", Port: closedPort(t)}

	start := time.Now()
	client, err := NewRedisClient(context.Background(), cfg,
		WithLogger(zap.New(core)),
		WithConnectTimeout(1200*time.Millisecond),
	)

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), cfg.Addr())
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.GreaterOrEqual(t, recorded.FilterMessage("Redis not ready, retrying").Len(), 1)
}

func TestNewRedisClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRedisClient(ctx, config.RedisConfig{Host: "127.0.0.1", Port: closedPort(t)})
	assert.Error(t, err)
}
