package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/telemetry"
)

// SyncRunner runs one stock synchronization
type SyncRunner interface {
	Run(ctx context.Context) (*integration.SyncResult, error)
}

// ---------------------------------------------------------------------------
// StockSyncTriggerConfig
// ---------------------------------------------------------------------------

// StockSyncTriggerConfig holds configuration for the stock sync trigger
type StockSyncTriggerConfig struct {
	// Interval is the time between two runs
	Interval time.Duration

	// RunOnStart runs a synchronization as soon as the trigger starts
	RunOnStart bool

	// JobTimeout bounds a single run; zero means no bound
	JobTimeout time.Duration
}

// DefaultStockSyncTriggerConfig returns default configuration
func DefaultStockSyncTriggerConfig() StockSyncTriggerConfig {
	return StockSyncTriggerConfig{
		Interval:   15 * time.Minute,
		JobTimeout: 10 * time.Minute,
	}
}

// Validate checks the configuration
func (c StockSyncTriggerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("%w: job timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ---------------------------------------------------------------------------
// StockSyncTrigger
// ---------------------------------------------------------------------------

// StockSyncTrigger runs stock synchronization on a fixed interval
type StockSyncTrigger struct {
	config StockSyncTriggerConfig
	runner SyncRunner
	clock  clock.WithTicker
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	statsMu  sync.RWMutex
	runs     int
	failures int
	lastRun  time.Time
	lastErr  error
}

// TriggerOption configures a StockSyncTrigger
type TriggerOption func(*StockSyncTrigger)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.WithTicker) TriggerOption {
	return func(t *StockSyncTrigger) {
		if c != nil {
			t.clock = c
		}
	}
}

// NewStockSyncTrigger creates a new stock sync trigger
func NewStockSyncTrigger(
	config StockSyncTriggerConfig,
	runner SyncRunner,
	logger *zap.Logger,
	opts ...TriggerOption,
) (*StockSyncTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &StockSyncTrigger{
		config: config,
		runner: runner,
		clock:  clock.RealClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Start starts the trigger loop
func (c *StockSyncTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.isRunning = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.runLoop(ctx)

	c.logger.Info("Stock sync trigger started",
		zap.Duration("interval", c.config.Interval),
		zap.Bool("run_on_start", c.config.RunOnStart),
		zap.Duration("job_timeout", c.config.JobTimeout),
	)

	return nil
}

// Stop stops the trigger and waits for an in-flight run to return
func (c *StockSyncTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Stock sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (c *StockSyncTrigger) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning
}

func (c *StockSyncTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(c.config.Interval)
	defer ticker.Stop()

	if c.config.RunOnStart {
		c.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.runOnce(ctx)
		}
	}
}

// runOnce runs one synchronization bounded by the job timeout
func (c *StockSyncTrigger) runOnce(ctx context.Context) {
	ctx = telemetry.WithTrigger(ctx, telemetry.TriggerScheduler)
	if c.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.config.JobTimeout, ErrSyncTimeout)
		defer cancel()
	}

	result, err := c.runner.Run(ctx)
	if errors.Is(context.Cause(ctx), ErrSyncTimeout) {
		err = errors.Join(ErrSyncTimeout, err)
	}
	c.record(err)

	switch {
	case err == nil:
		c.logger.Info("Scheduled stock sync finished",
			zap.Int("updated", result.UpdatedCount),
			zap.String("status", result.Status.String()))
	case errors.Is(err, integration.ErrSyncInProgress), errors.Is(err, integration.ErrSyncDisabled):
		c.logger.Info("Scheduled stock sync skipped", zap.Error(err))
	case ctx.Err() != nil && !errors.Is(err, ErrSyncTimeout):
		// shutting down
	default:
		c.logger.Warn("Scheduled stock sync failed",
			zap.String("error_kind", integration.KindOf(err).String()),
			zap.Error(err))
	}
}

func (c *StockSyncTrigger) record(err error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.runs++
	if err != nil {
		c.failures++
	}
	c.lastRun = c.clock.Now()
	c.lastErr = err
}

// TriggerStats describes the trigger loop
type TriggerStats struct {
	IsRunning bool
	Interval  time.Duration
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError string
}

// GetStats returns statistics about the trigger
func (c *StockSyncTrigger) GetStats() TriggerStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()

	stats := TriggerStats{
		IsRunning: c.IsRunning(),
		Interval:  c.config.Interval,
		Runs:      c.runs,
		Failures:  c.failures,
		LastRun:   c.lastRun,
	}
	if c.lastErr != nil {
		stats.LastError = c.lastErr.Error()
	}
	return stats
}
