package models

import (
	"errors"
	"fmt"
)

// ErrNoWorkersStarted is returned with a complete (all failed) report when not
// a single worker of a batch could be started.
var ErrNoWorkersStarted = errors.New("no worker could be started")

// ConfigurationError rejects a request before any work starts. It is never
// retried automatically.
type ConfigurationError struct {
	Code   string // offending region code or product id
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Code == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %q", e.Reason, e.Code)
}

// PersistenceError reports a failed store write. The report it belongs to is
// still valid and is returned next to it.
type PersistenceError struct {
	ProductID string
	Retryable bool
	Cause     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.ProductID, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
