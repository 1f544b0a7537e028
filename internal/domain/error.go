package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidExecContext = errors.New("invalid query execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrTerminalStatus     = errors.New("job is already in a terminal status")
	ErrLockNotAcquired    = errors.New("could not acquire lock")
	ErrAlreadyReviewed    = errors.New("job post status is already set")
	ErrNotPosted          = errors.New("job has not been posted")
	ErrJobNotCompleted    = errors.New("job has not completed")
)

// ConfigurationError is raised before any job is dispatched: a batch that is
// missing its image pool, backend credentials, or other required settings
// fails as a whole with zero side effects.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// TransientExternalError marks a failure of an external service that is worth
// retrying (rate limit, server error). Exhausting retries converts it into a
// job failure.
type TransientExternalError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("%s: transient failure (status %d): %v", e.Service, e.StatusCode, e.Err)
}

func (e *TransientExternalError) Unwrap() error { return e.Err }

/// PermanentExternalError marks a failure that no retry can fix: the source is
// gone, private, or unsupported.
type PermanentExternalError struct {
	Service    string
	StatusCode int
	Reason     string
}

func (e *PermanentExternalError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Service, e.Reason, e.StatusCode)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientExternalError
	return errors.As(err, &te)
}

// IsConfiguration reports whether err should fail a batch before dispatch.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
