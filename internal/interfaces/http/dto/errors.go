package dto

import (
	"net/http"

	"github.com/erp/stocksync/internal/domain/integration"
)

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal      = "ERR_INTERNAL"
	ErrCodeValidation    = "ERR_VALIDATION"
	ErrCodeBadRequest    = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON   = "ERR_INVALID_JSON"
	ErrCodeForbidden     = "ERR_FORBIDDEN"
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeUnavailable   = "ERR_SERVICE_UNAVAILABLE"
	ErrCodeRateLimited   = "ERR_RATE_LIMITED"
	ErrCodeInProgress    = "ERR_SYNC_IN_PROGRESS"
	ErrCodeDisabled      = "ERR_SYNC_DISABLED"
	ErrCodeNotConfigured = "ERR_NOT_CONFIGURED"
	ErrCodeUpstream      = "ERR_UPSTREAM"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeInvalidJSON:   http.StatusBadRequest,
	ErrCodeForbidden:     http.StatusForbidden,
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeUnavailable:   http.StatusServiceUnavailable,
	ErrCodeRateLimited:   http.StatusTooManyRequests,
	ErrCodeInProgress:    http.StatusConflict,
	ErrCodeDisabled:      http.StatusServiceUnavailable,
	ErrCodeNotConfigured: http.StatusInternalServerError,
	ErrCodeUpstream:      http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// SyncErrorCode maps a synchronization failure to an error code
func SyncErrorCode(kind integration.ErrorKind) string {
	switch {
	case kind == integration.ErrorKindInProgress:
		return ErrCodeInProgress
	case kind == integration.ErrorKindDisabled:
		return ErrCodeDisabled
	case kind == integration.ErrorKindRateLimit:
		return ErrCodeRateLimited
	case kind == integration.ErrorKindConfig:
		return ErrCodeNotConfigured
	case kind.IsUpstream():
		return ErrCodeUpstream
	default:
		return ErrCodeInternal
	}
}
