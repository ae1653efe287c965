package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/erp/stocksync/internal/domain/integration"
)

const defaultLockKey = "stocksync:lock:sync"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLocker takes the run lock with SET NX and a TTL. The TTL bounds how
// long a crashed holder can block other processes.
type RedisRunLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisRunLocker creates a locker on key (default "stocksync:lock:sync")
func NewRedisRunLocker(client *redis.Client, key string, ttl time.Duration) *RedisRunLocker {
	if key == "" {
		key = defaultLockKey
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisRunLocker{client: client, key: key, ttl: ttl}
}

// TryLock implements integration.RunLocker
func (l *RedisRunLocker) TryLock(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, integration.ErrSyncInProgress
	}

	return func() {
		// The caller's context may already be done when the run ends.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err()
	}, nil
}

var _ integration.RunLocker = (*RedisRunLocker)(nil)
