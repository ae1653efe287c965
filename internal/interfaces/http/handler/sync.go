package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/erp/stocksync/internal/application/integration"
	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/logger"
	"github.com/erp/stocksync/internal/infrastructure/telemetry"
	"github.com/erp/stocksync/internal/interfaces/http/dto"
	"github.com/erp/stocksync/internal/interfaces/http/middleware"
)

const (
	moduleDisabledMessage = "Module is disabled"

	cronInstructions = "Call this URL from your system cron to synchronize stock, for example every " +
		"15 minutes: */15 * * * * curl -fsS \"<cron_url>\" > /dev/null"
)

// StockSyncService is the application service behind the sync endpoints
type StockSyncService interface {
	Run(ctx context.Context) (*integration.SyncResult, error)
	Enabled() bool
	LastRun() *appintegration.RunReport
	APIKeyConfigured(ctx context.Context) (bool, error)
	SetAPIKey(ctx context.Context, apiKey string) error
	CronURL(ctx context.Context, publicURL string) (string, error)
}

// SyncHandler serves the cron trigger and the administrative sync API
type SyncHandler struct {
	BaseHandler
	service    StockSyncService
	publicURL  string
	runTimeout time.Duration
	logger     *zap.Logger
}

// SyncHandlerOption configures a SyncHandler
type SyncHandlerOption func(*SyncHandler)

// WithRunTimeout bounds runs started over HTTP; zero means no bound.
// It should stay below the run lock TTL.
func WithRunTimeout(d time.Duration) SyncHandlerOption {
	return func(h *SyncHandler) {
		if d > 0 {
			h.runTimeout = d
		}
	}
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(service StockSyncService, publicURL string, log *zap.Logger, opts ...SyncHandlerOption) *SyncHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &SyncHandler{
		service:   service,
		publicURL: publicURL,
		logger:    log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RequireEnabled answers 503 in plain text while the module is switched off
func (h *SyncHandler) RequireEnabled(c *gin.Context) {
	if !h.service.Enabled() {
		c.Abort()
		c.String(http.StatusServiceUnavailable, moduleDisabledMessage)
		return
	}
	c.Next()
}

// runContext detaches the run from the client connection and applies the run timeout
func (h *SyncHandler) runContext(c *gin.Context, trigger string) (context.Context, context.CancelFunc) {
	ctx := telemetry.WithTrigger(context.WithoutCancel(c.Request.Context()), trigger)
	if h.runTimeout > 0 {
		return context.WithTimeout(ctx, h.runTimeout)
	}
	return context.WithCancel(ctx)
}

// Trigger runs a synchronization for the cron caller and answers in plain text.
// A dropped client does not abort a run in progress.
func (h *SyncHandler) Trigger(c *gin.Context) {
	ctx, cancel := h.runContext(c, telemetry.TriggerHTTP)
	defer cancel()

	result, err := h.service.Run(ctx)
	if err != nil {
		c.String(syncErrorStatus(err), appintegration.FailureMessage(err))
		return
	}
	c.String(http.StatusOK, appintegration.Summary(result))
}

// RunSync runs a synchronization and returns the result as JSON
func (h *SyncHandler) RunSync(c *gin.Context) {
	ctx, cancel := h.runContext(c, telemetry.TriggerAdmin)
	defer cancel()

	result, err := h.service.Run(ctx)
	if err != nil {
		code := dto.SyncErrorCode(integration.KindOf(err))
		h.ErrorWithCode(c, code, appintegration.FailureMessage(err))
		return
	}
	h.Success(c, dto.NewSyncResultResponse(result))
}

// GetStatus returns the module state and the most recent run
func (h *SyncHandler) GetStatus(c *gin.Context) {
	configured, err := h.service.APIKeyConfigured(c.Request.Context())
	if err != nil {
		logger.WithLogger(c.Request.Context(), h.logger).Error("Failed to read API key", zap.Error(err))
		h.InternalError(c, "Failed to read settings")
		return
	}

	resp := dto.SyncStatusResponse{
		Enabled:          h.service.Enabled(),
		APIKeyConfigured: configured,
	}
	if last := h.service.LastRun(); last != nil {
		resp.LastRun = dto.NewSyncResultResponse(last.Result)
		resp.LastTrigger = last.Trigger
		if last.Err != nil {
			resp.LastError = last.Err.Error()
			resp.LastErrorKind = integration.KindOf(last.Err).String()
		}
	}
	h.Success(c, resp)
}

// SetAPIKey stores a new remote API key
func (h *SyncHandler) SetAPIKey(c *gin.Context) {
	var req dto.SetAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.service.SetAPIKey(c.Request.Context(), req.APIKey); err != nil {
		if errors.Is(err, appintegration.ErrInvalidAPIKey) {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
			return
		}
		logger.WithLogger(c.Request.Context(), h.logger).Error("Failed to store API key", zap.Error(err))
		h.InternalError(c, "Failed to store API key")
		return
	}
	h.Success(c, gin.H{"api_key_configured": true})
}

// GetCronSettings returns the trigger URL for an external cron
func (h *SyncHandler) GetCronSettings(c *gin.Context) {
	cronURL, err := h.service.CronURL(c.Request.Context(), h.publicURL)
	if err != nil {
		logger.WithLogger(c.Request.Context(), h.logger).Error("Failed to read cron key", zap.Error(err))
		h.InternalError(c, "Failed to read settings")
		return
	}
	h.Success(c, dto.CronSettingsResponse{
		CronURL:      cronURL,
		Instructions: cronInstructions,
	})
}

// syncErrorStatus maps a run error to the trigger's HTTP status
func syncErrorStatus(err error) int {
	return dto.GetHTTPStatus(dto.SyncErrorCode(integration.KindOf(err)))
}
