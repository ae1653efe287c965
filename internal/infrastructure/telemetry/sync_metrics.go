package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Trigger sources for a synchronization run.
const (
	TriggerHTTP      = "http"
	TriggerScheduler = "scheduler"
	TriggerCLI       = "cli"
	TriggerAdmin     = "admin"
)

type triggerKey struct{}

// WithTrigger tags ctx with the source that started a run.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger stored in ctx, or "unknown".
func TriggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return "unknown"
}

// SyncRunStats is what one synchronization run reports to metrics.
type SyncRunStats struct {
	Status     string
	ErrorKind  string
	Trigger    string
	Duration   time.Duration
	Fetched    int
	Updated    int
	Skipped    int
	Unresolved int
	Failed     int
}

// SyncMetrics holds the stock synchronization instruments.
type SyncMetrics struct {
	runsTotal       *Counter   // stocksync_runs_total
	runDuration     *Histogram // stocksync_run_duration_seconds
	recordsFetched  *Counter   // stocksync_records_fetched_total
	productsUpdated *Counter   // stocksync_products_updated_total
	recordsSkipped  *Counter   // stocksync_records_skipped_total
	skuUnresolved   *Counter   // stocksync_sku_unresolved_total
	writesFailed    *Counter   // stocksync_writes_failed_total
}

// NewSyncMetrics creates the synchronization instruments on meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, errors.New("NewSyncMetrics: meter cannot be nil")
	}

	var err error
	m := &SyncMetrics{}
	if m.runsTotal, err = NewCounter(meter, "stocksync_runs_total",
		"Synchronization runs by outcome", "{run}"); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "stocksync_run_duration_seconds",
		Description: "Wall time of a synchronization run",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.recordsFetched, err = NewCounter(meter, "stocksync_records_fetched_total",
		"Stock records received from KeyCRM", "{record}"); err != nil {
		return nil, err
	}
	if m.productsUpdated, err = NewCounter(meter, "stocksync_products_updated_total",
		"Local stock rows written", "{product}"); err != nil {
		return nil, err
	}
	if m.recordsSkipped, err = NewCounter(meter, "stocksync_records_skipped_total",
		"Records ignored for a missing SKU", "{record}"); err != nil {
		return nil, err
	}
	if m.skuUnresolved, err = NewCounter(meter, "stocksync_sku_unresolved_total",
		"SKUs with no local product or variant", "{record}"); err != nil {
		return nil, err
	}
	if m.writesFailed, err = NewCounter(meter, "stocksync_writes_failed_total",
		"Stock writes that returned an error", "{record}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRun records the outcome and counters of one run. Safe on a nil receiver.
func (m *SyncMetrics) RecordRun(ctx context.Context, stats SyncRunStats) {
	if m == nil {
		return
	}

	m.runsTotal.Inc(ctx,
		AttrSyncStatus.String(stats.Status),
		AttrErrorKind.String(stats.ErrorKind),
		AttrTrigger.String(stats.Trigger),
	)
	m.runDuration.RecordDuration(ctx, stats.Duration, AttrSyncStatus.String(stats.Status))
	m.recordsFetched.Add(ctx, int64(stats.Fetched))
	m.productsUpdated.Add(ctx, int64(stats.Updated))
	m.recordsSkipped.Add(ctx, int64(stats.Skipped))
	m.skuUnresolved.Add(ctx, int64(stats.Unresolved))
	m.writesFailed.Add(ctx, int64(stats.Failed))
}
