// Package errors consolidates error definitions for the entire project.
//
// It provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error constructors with context
// - A ValidationErrors collector for multi-field validation
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Validation errors - rejected before any mutation
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidLevel     = errors.New("invalid log level")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrInvalidValue     = errors.New("invalid value")
	ErrInvalidName      = errors.New("invalid name")

	// Registry identity errors
	ErrRuleNotFound = errors.New("alert rule not found")
	ErrRuleExists   = errors.New("alert rule already exists")

	// Expression errors
	ErrInvalidExpression = errors.New("invalid alert expression")

	// Persistence errors
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// Auth errors (HTTP layer only; the core receives a validated identity)
	ErrInvalidAPIKey = errors.New("invalid API key")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrClosed   = errors.New("service is closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrInvalidLevel) ||
		errors.Is(err, ErrInvalidSeverity) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidExpression)
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

// IsAlreadyExists returns true if err is an already-exists error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrRuleExists)
}

// IsAuthError returns true if err is an authentication error.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidAPIKey)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidValue)
}

// NewInvalidExpression creates an expression error with position context.
func NewInvalidExpression(expr, reason string) error {
	return fmt.Errorf("%q: %s: %w", expr, reason, ErrInvalidExpression)
}

// NewRuleNotFound creates a not-found error for a named rule.
func NewRuleNotFound(name string) error {
	return fmt.Errorf("rule %q: %w", name, ErrRuleNotFound)
}

// NewRuleExists creates an already-exists error for a named rule.
func NewRuleExists(name string) error {
	return fmt.Errorf("rule %q: %w", name, ErrRuleExists)
}

// NewCorruptSnapshot creates a corrupt-snapshot error with the underlying cause.
func NewCorruptSnapshot(path string, cause error) error {
	return fmt.Errorf("snapshot %s: %v: %w", path, cause, ErrCorruptSnapshot)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
