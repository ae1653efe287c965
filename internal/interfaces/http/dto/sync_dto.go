package dto

import (
	"time"

	appintegration "github.com/erp/stocksync/internal/application/integration"
	"github.com/erp/stocksync/internal/domain/integration"
)

// SyncResultResponse is the JSON form of a synchronization result
type SyncResultResponse struct {
	RunID           string    `json:"run_id"`
	Status          string    `json:"status"`
	FetchedCount    int       `json:"fetched_count"`
	UpdatedCount    int       `json:"updated_count"`
	SkippedCount    int       `json:"skipped_count"`
	UnresolvedCount int       `json:"unresolved_count"`
	FailedCount     int       `json:"failed_count"`
	Timestamp       time.Time `json:"timestamp"`
	DurationMs      int64     `json:"duration_ms"`
	Summary         string    `json:"summary"`
}

// NewSyncResultResponse converts a domain result
func NewSyncResultResponse(r *integration.SyncResult) *SyncResultResponse {
	if r == nil {
		return nil
	}
	return &SyncResultResponse{
		RunID:           r.RunID.String(),
		Status:          r.Status.String(),
		FetchedCount:    r.FetchedCount,
		UpdatedCount:    r.UpdatedCount,
		SkippedCount:    r.SkippedCount,
		UnresolvedCount: r.UnresolvedCount,
		FailedCount:     r.FailedCount,
		Timestamp:       r.Timestamp,
		DurationMs:      r.Duration.Milliseconds(),
		Summary:         appintegration.Summary(r),
	}
}

// SyncStatusResponse describes the module state and the last run
type SyncStatusResponse struct {
	Enabled          bool                `json:"enabled"`
	APIKeyConfigured bool                `json:"api_key_configured"`
	LastRun          *SyncResultResponse `json:"last_run,omitempty"`
	LastTrigger      string              `json:"last_trigger,omitempty"`
	LastError        string              `json:"last_error,omitempty"`
	LastErrorKind    string              `json:"last_error_kind,omitempty"`
}

// SetAPIKeyRequest updates the remote API key
type SetAPIKeyRequest struct {
	APIKey string `json:"api_key" binding:"required,notblank,min=8"`
}

// CronSettingsResponse tells an operator how to schedule the trigger
type CronSettingsResponse struct {
	CronURL      string `json:"cron_url"`
	Instructions string `json:"instructions"`
}
