// Package cache creates the shared Redis client used for the cross-process
// rate limit window and the run lock.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/stocksync/internal/infrastructure/config"
)

// ClientOption configures NewRedisClient
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger         *zap.Logger
	connectTimeout time.Duration
}

// WithLogger sets the logger used to report connection retries
func WithLogger(logger *zap.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithConnectTimeout bounds how long NewRedisClient keeps retrying the first ping
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.connectTimeout = d
	}
}

// NewRedisClient connects to Redis and pings it until it answers or the
// connect timeout (default 10s) runs out.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, opts ...ClientOption) (*redis.Client, error) {
	o := &clientOptions{logger: zap.NewNop(), connectTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	_, err := backoff.Retry(ctx, func() (string, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Result()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(o.connectTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.logger.Warn("Redis not ready, retrying",
				zap.String("addr", cfg.Addr()),
				zap.Error(err),
				zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	o.logger.Info("Connected to Redis", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	return client, nil
}
