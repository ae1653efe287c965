package lock

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/config"
)

// Factory creates the RunLocker selected by configuration
type Factory struct {
	cfg         config.LockConfig
	redisClient *redis.Client
	keyPrefix   string
	logger      *zap.Logger
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithRedis supplies the client for the redis backend. Keys are created
// under keyPrefix.
func WithRedis(client *redis.Client, keyPrefix string) FactoryOption {
	return func(f *Factory) {
		f.redisClient = client
		f.keyPrefix = keyPrefix
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.LockConfig, opts ...FactoryOption) *Factory {
	f := &Factory{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the configured locker. The redis backend fails without a
// client rather than silently degrading to a per-host lock.
func (f *Factory) Create() (integration.RunLocker, error) {
	switch f.cfg.Backend {
	case config.LockBackendRedis:
		if f.redisClient == nil {
			return nil, fmt.Errorf("lock backend %q requires a Redis client", f.cfg.Backend)
		}
		f.logger.Info("Using Redis run lock", zap.Duration("ttl", f.cfg.TTL))
		return NewRedisRunLocker(f.redisClient, f.keyPrefix+"lock:sync", f.cfg.TTL), nil

	case config.LockBackendFile, "":
		locker, err := NewFileRunLocker(f.cfg.FilePath)
		if err != nil {
			return nil, err
		}
		f.logger.Info("Using file run lock", zap.String("path", f.cfg.FilePath))
		return locker, nil

	case config.LockBackendNone:
		f.logger.Warn("No cross-process run lock configured; only runs within this process are serialized")
		return NewInMemoryRunLocker(), nil

	default:
		return nil, fmt.Errorf("unknown lock backend %q", f.cfg.Backend)
	}
}
