package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateKey is returned when an item with the same external id is already stored.
	ErrDuplicateKey = errors.New("duplicate external id")
	// ErrNotFound is returned when no item matches the lookup.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidTransition rejects status moves outside the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleStatus means the item was not in the expected status when updated.
	ErrStaleStatus = errors.New("item status changed concurrently")
)

// ConfigurationError is fatal for the run: a required input is missing or unusable.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// ParseError marks a single malformed upstream record; callers skip it.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("parse %s %q", e.Field, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// QuotaError signals back-pressure from the generation backend.
type QuotaError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *QuotaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation quota exhausted (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("generation quota exhausted (retry after %s)", e.RetryAfter)
}

func (e *QuotaError) Unwrap() error { return e.Err }
