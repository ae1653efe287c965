package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Stock Sync Errors
// ---------------------------------------------------------------------------

var (
	// Fetch errors (fatal for the run)
	ErrConfig      = errors.New("integration: stock source api key not configured")
	ErrRateLimited = errors.New("integration: stock source rate limit reached")
	ErrTransport   = errors.New("integration: stock source request failed")
	ErrHTTPStatus  = errors.New("integration: unexpected stock source response status")
	ErrParse       = errors.New("integration: stock source returned malformed JSON")
	ErrSchema      = errors.New("integration: stock source response has no data list")
	ErrNoData      = errors.New("integration: stock source returned no stock records")

	// Run errors
	ErrSyncInProgress = errors.New("integration: synchronization already in progress")
	ErrSyncDisabled   = errors.New("integration: synchronization module is disabled")
)

// HTTPStatusError reports a non-200 response from the stock source.
// It matches ErrHTTPStatus with errors.Is.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrHTTPStatus.Error(), e.StatusCode)
}

// Unwrap returns ErrHTTPStatus
func (e *HTTPStatusError) Unwrap() error {
	return ErrHTTPStatus
}

// ---------------------------------------------------------------------------
// ErrorKind classifies synchronization failures
// ---------------------------------------------------------------------------

// ErrorKind is a stable tag for a synchronization failure, used for
// metrics labels and response mapping.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindConfig     ErrorKind = "CONFIG"
	ErrorKindRateLimit  ErrorKind = "RATE_LIMIT"
	ErrorKindTransport  ErrorKind = "TRANSPORT"
	ErrorKindHTTPStatus ErrorKind = "HTTP_STATUS"
	ErrorKindParse      ErrorKind = "PARSE"
	ErrorKindSchema     ErrorKind = "SCHEMA"
	ErrorKindNoData     ErrorKind = "NO_DATA"
	ErrorKindInProgress ErrorKind = "IN_PROGRESS"
	ErrorKindDisabled   ErrorKind = "DISABLED"
	ErrorKindInternal   ErrorKind = "INTERNAL"
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	return string(k)
}

// IsUpstream reports whether the failure originated at the stock source.
func (k ErrorKind) IsUpstream() bool {
	switch k {
	case ErrorKindTransport, ErrorKindHTTPStatus, ErrorKindParse, ErrorKindSchema, ErrorKindNoData:
		return true
	default:
		return false
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrConfig, ErrorKindConfig},
	{ErrRateLimited, ErrorKindRateLimit},
	{ErrTransport, ErrorKindTransport},
	{ErrHTTPStatus, ErrorKindHTTPStatus},
	{ErrParse, ErrorKindParse},
	{ErrSchema, ErrorKindSchema},
	{ErrNoData, ErrorKindNoData},
	{ErrSyncInProgress, ErrorKindInProgress},
	{ErrSyncDisabled, ErrorKindDisabled},
}

// KindOf classifies err. A nil error yields ErrorKindNone and anything
// unrecognized yields ErrorKindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ErrorKindInternal
}
