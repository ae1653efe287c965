// Package ratelimit gates outbound calls to the stock source with a fixed window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Config holds the limiter settings
type Config struct {
	// Limit is the number of requests allowed per window
	Limit int
	// Window is the window length
	Window time.Duration
}

// DefaultConfig returns 60 requests per minute
func DefaultConfig() Config {
	return Config{
		Limit:  60,
		Window: time.Minute,
	}
}

func (c *Config) applyDefaults() {
	if c.Limit <= 0 {
		c.Limit = 60
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

// Window is the state of the current fixed window
type Window struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// WindowStore persists the window between calls, and between processes
// when backed by a shared store.
type WindowStore interface {
	Load(ctx context.Context) (Window, bool, error)
	Save(ctx context.Context, w Window) error
}

// FixedWindowLimiter allows Limit requests per Window. CanMakeRequest never
// counts a request; callers report each completed call with RecordRequest.
type FixedWindowLimiter struct {
	mu     sync.Mutex
	cfg    Config
	clock  clock.PassiveClock
	store  WindowStore
	logger *zap.Logger
	window Window
}

// Option configures a FixedWindowLimiter
type Option func(*FixedWindowLimiter)

// WithClock replaces the wall clock
func WithClock(c clock.PassiveClock) Option {
	return func(l *FixedWindowLimiter) {
		l.clock = c
	}
}

// WithStore persists the window in s
func WithStore(s WindowStore) Option {
	return func(l *FixedWindowLimiter) {
		l.store = s
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *FixedWindowLimiter) {
		l.logger = logger
	}
}

// NewFixedWindowLimiter creates a limiter with an empty window
func NewFixedWindowLimiter(cfg Config, opts ...Option) *FixedWindowLimiter {
	cfg.applyDefaults()
	l := &FixedWindowLimiter{
		cfg:    cfg,
		clock:  clock.RealClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanMakeRequest reports whether another request fits in the current window.
// An elapsed window is reset and the request allowed.
func (l *FixedWindowLimiter) CanMakeRequest(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.load(ctx)

	now := l.clock.Now()
	if now.Sub(l.window.Start) >= l.cfg.Window {
		l.window = Window{Start: now}
		l.save(ctx)
		return true
	}

	if l.window.Count >= l.cfg.Limit {
		l.logger.Debug("Request denied by rate limiter",
			zap.Int("count", l.window.Count),
			zap.Time("window_start", l.window.Start))
		return false
	}
	return true
}

// RecordRequest counts one completed request against the current window
func (l *FixedWindowLimiter) RecordRequest(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.load(ctx)
	l.window.Count++
	l.save(ctx)
}

// Snapshot returns a copy of the current window
func (l *FixedWindowLimiter) Snapshot() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window
}

// Store failures are logged and the in-memory window keeps serving.
func (l *FixedWindowLimiter) load(ctx context.Context) {
	if l.store == nil {
		return
	}
	w, ok, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Warn("Failed to load rate limit window", zap.Error(err))
		return
	}
	if ok {
		l.window = w
	}
}

func (l *FixedWindowLimiter) save(ctx context.Context) {
	if l.store == nil {
		return
	}
	if err := l.store.Save(ctx, l.window); err != nil {
		l.logger.Warn("Failed to save rate limit window", zap.Error(err))
	}
}
