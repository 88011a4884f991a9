package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrBudgetExhausted indicates that the per-document LLM call budget is spent.
	ErrBudgetExhausted = errors.New("llm budget exhausted")

	// ErrMandatoryCheck indicates that a policy-mandatory check could not run.
	ErrMandatoryCheck = errors.New("mandatory check unavailable")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrNoIdentifier indicates that a work has no usable identifier.
	ErrNoIdentifier = errors.New("no identifier")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a record that was not found.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// BudgetExhaustedError reports which escalation point ran out of LLM calls.
type BudgetExhaustedError struct {
	Stage string
	Limit int
}

// Error implements the error interface.
func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("llm budget exhausted at %s (limit %d)", e.Stage, e.Limit)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *BudgetExhaustedError) Unwrap() error {
	return ErrBudgetExhausted
}

// MandatoryCheckError reports a policy-mandatory check that could not run.
// The document-level analysis fails with this error rather than silently
// producing an incomplete report.
type MandatoryCheckError struct {
	Check        string
	Collaborator string
	Cause        error
}

// Error implements the error interface.
func (e *MandatoryCheckError) Error() string {
	return fmt.Sprintf("mandatory check %q cannot run: collaborator %s unavailable: %v", e.Check, e.Collaborator, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *MandatoryCheckError) Unwrap() error {
	return ErrMandatoryCheck
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewBudgetExhaustedError creates a new BudgetExhaustedError.
func NewBudgetExhaustedError(stage string, limit int) *BudgetExhaustedError {
	return &BudgetExhaustedError{
		Stage: stage,
		Limit: limit,
	}
}

// NewMandatoryCheckError creates a new MandatoryCheckError.
func NewMandatoryCheckError(check, collaborator string, cause error) *MandatoryCheckError {
	return &MandatoryCheckError{
		Check:        check,
		Collaborator: collaborator,
		Cause:        cause,
	}
}
