package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrSyncTimeout is reported when a scheduled run exceeds its job timeout
	ErrSyncTimeout = errors.New("scheduled stock sync timed out")
)
