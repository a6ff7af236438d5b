// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All allocation errors must use AppError so callers can branch on Code.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Not found (404)
	CodeNotFound        = "NOT_FOUND"
	CodePatternNotFound = "PATTERN_NOT_FOUND"

	// Configuration errors (500, never retried)
	CodeMalformedPattern = "MALFORMED_PATTERN"

	// Numbering failures
	CodeFormatError       = "FORMAT_ERROR"
	CodeSequenceExhausted = "SEQUENCE_EXHAUSTED"

	// Conflict (409)
	CodeDuplicateRecord = "DUPLICATE_RECORD"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (office, template, width, ...)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Numbering taxonomy ---

// NewPatternNotFound is returned when an office has no configured template.
// Not retryable.
func NewPatternNotFound(office string) *AppError {
	return &AppError{
		Code:       CodePatternNotFound,
		Message:    fmt.Sprintf("no number pattern configured for office %q", office),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"office": office},
	}
}

// NewMalformedPattern is returned when a template fails structural validation.
// Detected at startup; aborts initialization.
func NewMalformedPattern(office, template, reason string) *AppError {
	return &AppError{
		Code:       CodeMalformedPattern,
		Message:    fmt.Sprintf("malformed pattern for office %q: %s", office, reason),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"office": office, "template": template, "reason": reason},
	}
}

// NewFormatError is returned when a value does not fit its placeholder run.
// Signals the pattern's sequence space is too small; not retryable.
func NewFormatError(value int64, width int) *AppError {
	return &AppError{
		Code:       CodeFormatError,
		Message:    fmt.Sprintf("value %d does not fit into %d digits", value, width),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"value": value, "width": width},
	}
}

// NewSequenceExhausted is returned when the collision retry budget ran out.
func NewSequenceExhausted(office string, attempts int) *AppError {
	return &AppError{
		Code:       CodeSequenceExhausted,
		Message:    fmt.Sprintf("no free document number for office %q after %d attempts", office, attempts),
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"office": office, "attempts": attempts},
	}
}

// NewDuplicateRecord is returned when persistence rejects an allocated number
// that is already owned by a live record. The caller must allocate again.
// The message is deliberately generic: it reaches end users.
func NewDuplicateRecord(number string) *AppError {
	return &AppError{
		Code:       CodeDuplicateRecord,
		Message:    "The document number is no longer available. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"number": number},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsPatternNotFound checks if error is CodePatternNotFound
func IsPatternNotFound(err error) bool { return HasCode(err, CodePatternNotFound) }

// IsMalformedPattern checks if error is CodeMalformedPattern
func IsMalformedPattern(err error) bool { return HasCode(err, CodeMalformedPattern) }

// IsFormatError checks if error is CodeFormatError
func IsFormatError(err error) bool { return HasCode(err, CodeFormatError) }

// IsSequenceExhausted checks if error is CodeSequenceExhausted
func IsSequenceExhausted(err error) bool { return HasCode(err, CodeSequenceExhausted) }

// IsDuplicateRecord checks if error is CodeDuplicateRecord
func IsDuplicateRecord(err error) bool { return HasCode(err, CodeDuplicateRecord) }

// IsRetryable reports whether re-invoking the failed operation may succeed.
// Only a downstream duplicate is; configuration and exhaustion errors need
// an operator.
func IsRetryable(err error) bool {
	return IsDuplicateRecord(err)
}
