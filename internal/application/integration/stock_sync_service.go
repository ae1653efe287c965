package integration

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/erp/stocksync/internal/domain/catalog"
	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/logger"
	"github.com/erp/stocksync/internal/infrastructure/telemetry"
)

const (
	tracerName = "github.com/erp/stocksync/internal/application/integration"

	// LogModule tags every entry written by the synchronization pipeline
	LogModule = "keycrmstock"

	runGroupKey = "stock-sync"
)

// ErrInvalidAPIKey is returned by SetAPIKey for a blank key
var ErrInvalidAPIKey = errors.New("integration: api key cannot be empty")

// RunReport is the outcome of the most recent completed run
type RunReport struct {
	Result  *integration.SyncResult
	Err     error
	Trigger string
}

// StockSyncService pulls stock from the remote source and writes sellable
// quantities into the local catalog.
type StockSyncService struct {
	fetcher  integration.StockFetcher
	stock    catalog.StockRepository
	settings integration.ConfigProvider
	locker   integration.RunLocker

	metrics *telemetry.SyncMetrics
	clock   clock.PassiveClock
	logger  *zap.Logger
	tracer  trace.Tracer
	enabled bool
	clamp   bool

	group singleflight.Group

	mu   sync.RWMutex
	last *RunReport
}

// StockSyncOption configures a StockSyncService
type StockSyncOption func(*StockSyncService)

// WithSyncLogger sets the service logger
func WithSyncLogger(l *zap.Logger) StockSyncOption {
	return func(s *StockSyncService) {
		if l != nil {
			s.logger = logger.ForModule(l, LogModule)
		}
	}
}

// WithSyncMetrics records every run on m
func WithSyncMetrics(m *telemetry.SyncMetrics) StockSyncOption {
	return func(s *StockSyncService) {
		s.metrics = m
	}
}

// WithSyncClock replaces the wall clock
func WithSyncClock(c clock.PassiveClock) StockSyncOption {
	return func(s *StockSyncService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSyncEnabled switches the module on or off
func WithSyncEnabled(enabled bool) StockSyncOption {
	return func(s *StockSyncService) {
		s.enabled = enabled
	}
}

// WithClampNegativeStock writes 0 instead of a negative available quantity
func WithClampNegativeStock(clamp bool) StockSyncOption {
	return func(s *StockSyncService) {
		s.clamp = clamp
	}
}

// NewStockSyncService creates the synchronization service. The module is enabled
// and negative quantities are written as-is unless options say otherwise.
func NewStockSyncService(
	fetcher integration.StockFetcher,
	stock catalog.StockRepository,
	settings integration.ConfigProvider,
	locker integration.RunLocker,
	opts ...StockSyncOption,
) *StockSyncService {
	s := &StockSyncService{
		fetcher:  fetcher,
		stock:    stock,
		settings: settings,
		locker:   locker,
		clock:    clock.RealClock{},
		logger:   logger.ForModule(zap.NewNop(), LogModule),
		tracer:   otel.Tracer(tracerName),
		enabled:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether the module accepts runs
func (s *StockSyncService) Enabled() bool {
	return s.enabled
}

// Run performs one synchronization. Concurrent callers in this process share
// the in-flight run; a run held by another process yields ErrSyncInProgress.
// A result is returned whenever a run was started, including failed ones.
func (s *StockSyncService) Run(ctx context.Context) (*integration.SyncResult, error) {
	if !s.enabled {
		return nil, integration.ErrSyncDisabled
	}

	ch := s.group.DoChan(runGroupKey, func() (any, error) {
		return s.runExclusive(ctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("Joined in-flight synchronization")
		}
		result, _ := res.Val.(*integration.SyncResult)
		if result != nil {
			copied := *result
			result = &copied
		}
		return result, res.Err
	}
}

func (s *StockSyncService) runExclusive(ctx context.Context) (*integration.SyncResult, error) {
	trigger := telemetry.TriggerFrom(ctx)

	unlock, err := s.locker.TryLock(ctx)
	if err != nil {
		s.logger.Warn("Synchronization skipped",
			zap.String("trigger", trigger),
			zap.Error(err))
		s.metrics.RecordRun(ctx, telemetry.SyncRunStats{
			Status:    integration.SyncStatusFailed.String(),
			ErrorKind: integration.KindOf(err).String(),
			Trigger:   trigger,
		})
		return nil, err
	}
	defer unlock()

	result, err := s.execute(ctx, trigger)

	s.mu.Lock()
	s.last = &RunReport{Result: result, Err: err, Trigger: trigger}
	s.mu.Unlock()

	s.metrics.RecordRun(ctx, telemetry.SyncRunStats{
		Status:     result.Status.String(),
		ErrorKind:  integration.KindOf(err).String(),
		Trigger:    trigger,
		Duration:   result.Duration,
		Fetched:    result.FetchedCount,
		Updated:    result.UpdatedCount,
		Skipped:    result.SkippedCount,
		Unresolved: result.UnresolvedCount,
		Failed:     result.FailedCount,
	})
	return result, err
}

// execute always returns a non-nil result
func (s *StockSyncService) execute(ctx context.Context, trigger string) (*integration.SyncResult, error) {
	started := s.clock.Now()
	result := &integration.SyncResult{
		RunID:  uuid.New(),
		Status: integration.SyncStatusSuccess,
	}
	finish := func() {
		result.Timestamp = s.clock.Now()
		result.Duration = result.Timestamp.Sub(started)
	}

	ctx = logger.WithRunID(ctx, result.RunID.String())
	ctx, span := s.tracer.Start(ctx, "stocksync.Run", trace.WithAttributes(
		attribute.String("stocksync.run_id", result.RunID.String()),
		attribute.String("stocksync.trigger", trigger),
	))
	defer span.End()
	log := logger.WithLogger(ctx, s.logger)

	log.Info("Synchronization started", zap.String("trigger", trigger))

	records, err := s.fetch(ctx)
	if err != nil {
		result.Status = integration.SyncStatusFailed
		finish()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Synchronization failed",
			zap.String("error_kind", integration.KindOf(err).String()),
			zap.Error(err))
		return result, err
	}
	result.FetchedCount = len(records)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			result.Status = integration.SyncStatusPartial
			finish()
			span.SetStatus(codes.Error, "interrupted")
			log.Error("Synchronization interrupted",
				zap.Int("updated", result.UpdatedCount),
				zap.Error(err))
			return result, fmt.Errorf("synchronization interrupted: %w", err)
		}
		s.apply(ctx, log, record, result)
	}

	if result.FailedCount > 0 {
		result.Status = integration.SyncStatusPartial
	}
	finish()

	span.SetAttributes(
		attribute.Int("stocksync.fetched", result.FetchedCount),
		attribute.Int("stocksync.updated", result.UpdatedCount),
		attribute.Int("stocksync.unresolved", result.UnresolvedCount),
		attribute.Int("stocksync.failed", result.FailedCount),
	)
	log.Info("Synchronization completed",
		zap.String("status", result.Status.String()),
		zap.Int("fetched", result.FetchedCount),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("unresolved", result.UnresolvedCount),
		zap.Int("failed", result.FailedCount),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (s *StockSyncService) fetch(ctx context.Context) ([]integration.StockRecord, error) {
	apiKey, err := s.settings.Get(ctx, integration.ConfigKeyAPIKey)
	if err != nil {
		return nil, fmt.Errorf("read api key: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, integration.ErrConfig
	}
	return s.fetcher.FetchAllStock(ctx, apiKey)
}

// apply writes one record and updates the run counters
func (s *StockSyncService) apply(ctx context.Context, log *logger.ContextLogger, record integration.StockRecord, result *integration.SyncResult) {
	if !record.IsValid() {
		result.SkippedCount++
		return
	}

	productID, err := s.stock.FindProductIDBySku(ctx, record.SKU)
	if errors.Is(err, catalog.ErrSkuNotFound) {
		result.UnresolvedCount++
		log.Debug("SKU not found in catalog", zap.String("sku", record.SKU))
		return
	}
	if err != nil {
		result.FailedCount++
		log.Error("SKU lookup failed", zap.String("sku", record.SKU), zap.Error(err))
		return
	}

	available := record.Available()
	if s.clamp && available < 0 {
		available = 0
	}

	if err := s.stock.SetQuantity(ctx, productID, available); err != nil {
		result.FailedCount++
		log.Error("Stock write failed",
			zap.String("sku", record.SKU),
			zap.String("product_id", productID.String()),
			zap.Error(err))
		return
	}
	result.UpdatedCount++
}

// LastRun returns the most recent completed run, or nil before the first one
func (s *StockSyncService) LastRun() *RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	report := *s.last
	if report.Result != nil {
		result := *report.Result
		report.Result = &result
	}
	return &report
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// EnsureCronKey stores a random 32-hex-char cron key when none is configured.
// It reports whether a new key was generated.
func (s *StockSyncService) EnsureCronKey(ctx context.Context) (bool, error) {
	current, err := s.settings.Get(ctx, integration.ConfigKeyCronKey)
	if err != nil {
		return false, fmt.Errorf("read cron key: %w", err)
	}
	if strings.TrimSpace(current) != "" {
		return false, nil
	}

	key := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.settings.Set(ctx, integration.ConfigKeyCronKey, key); err != nil {
		return false, fmt.Errorf("store cron key: %w", err)
	}
	s.logger.Info("Generated cron key")
	return true, nil
}

// VerifyCronKey compares candidate with the configured cron key in constant
// time. An unset cron key matches nothing.
func (s *StockSyncService) VerifyCronKey(ctx context.Context, candidate string) (bool, error) {
	key, err := s.settings.Get(ctx, integration.ConfigKeyCronKey)
	if err != nil {
		return false, fmt.Errorf("read cron key: %w", err)
	}
	if key == "" || candidate == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1, nil
}

// SetAPIKey stores the remote API key
func (s *StockSyncService) SetAPIKey(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrInvalidAPIKey
	}
	if err := s.settings.Set(ctx, integration.ConfigKeyAPIKey, apiKey); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	s.logger.Info("API key updated")
	return nil
}

// APIKeyConfigured reports whether a non-blank API key is stored
func (s *StockSyncService) APIKeyConfigured(ctx context.Context) (bool, error) {
	key, err := s.settings.Get(ctx, integration.ConfigKeyAPIKey)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(key) != "", nil
}

// CronURL returns the trigger URL an external cron should call
func (s *StockSyncService) CronURL(ctx context.Context, publicURL string) (string, error) {
	key, err := s.settings.Get(ctx, integration.ConfigKeyCronKey)
	if err != nil {
		return "", fmt.Errorf("read cron key: %w", err)
	}
	return strings.TrimRight(publicURL, "/") + "/sync?secure_key=" + url.QueryEscape(key), nil
}

// Summary renders the one-line success message for a run
func Summary(result *integration.SyncResult) string {
	return fmt.Sprintf("Synchronization completed successfully: %s. Updated products: %d",
		result.Timestamp.Format(integration.SummaryTimeLayout), result.UpdatedCount)
}

// FailureMessage renders the one-line failure message for err
func FailureMessage(err error) string {
	return "Synchronization error: " + err.Error()
}
