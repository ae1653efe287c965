package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Configuration keys shared by the trigger, the settings API and the sync run.
const (
	ConfigKeyAPIKey  = "KEYCRM_API_KEY"
	ConfigKeyCronKey = "KEYCRM_CRON_KEY"
)

// ---------------------------------------------------------------------------
// StockRecord
// ---------------------------------------------------------------------------

// StockRecord is one normalized stock line from the remote service.
type StockRecord struct {
	// SKU is the product reference used to match the local catalog
	SKU string
	// Price is the remote offer price, when the source sent one
	Price decimal.NullDecimal
	// Quantity is the on-hand quantity, never negative
	Quantity int64
	// Reserved is the quantity held by open orders, never negative
	Reserved int64
}

// Available returns the sellable quantity. The result is negative when more
// units are reserved than on hand.
func (r StockRecord) Available() int64 {
	return r.Quantity - r.Reserved
}

// IsValid reports whether the record can be applied to the catalog.
func (r StockRecord) IsValid() bool {
	return r.SKU != ""
}

// ---------------------------------------------------------------------------
// SyncStatus
// ---------------------------------------------------------------------------

// SyncStatus represents the outcome of a synchronization run
type SyncStatus string

const (
	// SyncStatusSuccess indicates every resolvable record was written
	SyncStatusSuccess SyncStatus = "SUCCESS"
	// SyncStatusPartial indicates some catalog writes failed
	SyncStatusPartial SyncStatus = "PARTIAL"
	// SyncStatusFailed indicates the run aborted before writing
	SyncStatusFailed SyncStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusSuccess, SyncStatusPartial, SyncStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncStatus
func (s SyncStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// SyncResult
// ---------------------------------------------------------------------------

// SyncResult represents the result of a synchronization run
type SyncResult struct {
	// RunID identifies the run in logs and traces
	RunID uuid.UUID
	// Status is the overall run status
	Status SyncStatus
	// UpdatedCount is the number of catalog quantities written
	UpdatedCount int
	// FetchedCount is the number of valid records pulled from the source
	FetchedCount int
	// SkippedCount is the number of records rejected by the re-check
	SkippedCount int
	// UnresolvedCount is the number of records whose SKU matched nothing
	UnresolvedCount int
	// FailedCount is the number of records whose catalog write failed
	FailedCount int
	// Timestamp is when the run completed
	Timestamp time.Time
	// Duration is the wall time of the run
	Duration time.Duration
}

// SummaryTimeLayout formats SyncResult timestamps in run summaries.
const SummaryTimeLayout = "2006-01-02 15:04:05"

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// StockFetcher pulls the complete stock list from the remote service.
// Any failure aborts the fetch and no partial records are returned.
type StockFetcher interface {
	FetchAllStock(ctx context.Context, apiKey string) ([]StockRecord, error)
}

// ConfigProvider is the module's key/value settings store.
// Get returns an empty string for unknown keys.
type ConfigProvider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// RunLocker prevents two processes from synchronizing at the same time.
// TryLock returns ErrSyncInProgress when another holder owns the lock.
type RunLocker interface {
	TryLock(ctx context.Context) (unlock func(), err error)
}
