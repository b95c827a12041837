package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stores and the enrichment pipeline.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrNoData    = errors.New("no data available")

	ErrMissingEffectiveDate = errors.New("effective date is required")
	ErrNegativeCoverage     = errors.New("coverage amount must be >= 0")
	ErrEndBeforeStart       = errors.New("end date precedes effective date")
	ErrInvalidFilingStatus  = errors.New("invalid filing status")
	ErrInvalidEventType     = errors.New("invalid event type")
	ErrMissingIdentifier    = errors.New("identifier is required")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// DataQualityError reports a raw record that could not be mapped into an
// entity. These are logged, skipped, and counted, never silently dropped.
type DataQualityError struct {
	Field  string
	Value  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s: %s (value=%q)", e.Field, e.Reason, e.Value)
}

// NewDataQualityError creates a DataQualityError.
func NewDataQualityError(field, value, reason string) *DataQualityError {
	return &DataQualityError{Field: field, Value: value, Reason: reason}
}
