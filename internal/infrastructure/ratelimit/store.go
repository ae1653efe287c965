package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryWindowStore keeps the window in process memory
type MemoryWindowStore struct {
	mu     sync.RWMutex
	window Window
	set    bool
}

// NewMemoryWindowStore creates an empty in-memory store
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{}
}

// Load returns the stored window
func (s *MemoryWindowStore) Load(_ context.Context) (Window, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window, s.set, nil
}

// Save stores the window
func (s *MemoryWindowStore) Save(_ context.Context, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = w
	s.set = true
	return nil
}

const defaultKeyPrefix = "stocksync:ratelimit:"

// RedisWindowStore shares the window between processes through Redis.
// Entries expire two windows after their last write.
type RedisWindowStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisWindowStore creates a store under keyPrefix+name
func NewRedisWindowStore(client *redis.Client, keyPrefix, name string, window time.Duration) *RedisWindowStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisWindowStore{
		client: client,
		key:    keyPrefix + name,
		ttl:    2 * window,
	}
}

// Load returns the stored window, if any
func (s *RedisWindowStore) Load(ctx context.Context) (Window, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	var w Window
	if err := json.Unmarshal(raw, &w); err != nil {
		return Window{}, false, fmt.Errorf("failed to decode rate limit window: %w", err)
	}
	return w, true, nil
}

// Save stores the window with a TTL
func (s *RedisWindowStore) Save(ctx context.Context, w Window) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode rate limit window: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write rate limit window: %w", err)
	}
	return nil
}

var (
	_ WindowStore = (*MemoryWindowStore)(nil)
	_ WindowStore = (*RedisWindowStore)(nil)
)
