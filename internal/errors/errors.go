// Package errors defines the stable error taxonomy surfaced to MCP clients
// and used internally to decide retries and circuit-breaker accounting.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code is a stable, client-visible error code.
type Code string

const (
	// Client-input errors; retrying with corrected input can succeed.
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeResourceNotFound   Code = "RESOURCE_NOT_FOUND"
	CodeUnsupportedVersion Code = "UNSUPPORTED_VERSION"

	// Internal recoverable errors.
	CodeDatabaseConnection Code = "DATABASE_CONNECTION"
	CodeTransient          Code = "TRANSIENT"
	CodeTimeout            Code = "TIMEOUT"
	CodeCircuitOpen        Code = "CIRCUIT_OPEN"
	CodeResourceExhausted  Code = "RESOURCE_EXHAUSTED"

	// Internal non-recoverable errors.
	CodeSchemaResolution   Code = "SCHEMA_RESOLUTION"
	CodeCodeGeneration     Code = "CODE_GENERATION"
	CodeMigrationIntegrity Code = "MIGRATION_INTEGRITY"
	CodeDataIntegrity      Code = "DATA_INTEGRITY"

	// Parse-specific errors.
	CodeInvalidJSON         Code = "INVALID_JSON"
	CodeFileTooLarge        Code = "FILE_TOO_LARGE"
	CodeFileNotFound        Code = "FILE_NOT_FOUND"
	CodeMemoryLimitExceeded Code = "MEMORY_LIMIT_EXCEEDED"
	CodeStructureValidation Code = "STRUCTURE_VALIDATION"

	// Repository classification.
	CodeConflict   Code = "CONFLICT"
	CodeRepository Code = "REPOSITORY_ERROR"

	CodeInternal Code = "INTERNAL_ERROR"
)

// ServerError is the unified error type carried across component
// boundaries. Details must already be safe to log; the sanitizer strips
// sensitive keys before anything reaches a client.
type ServerError struct {
	Code        Code                   `json:"code"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Suggestions []string               `json:"suggestions,omitempty"`
	Err         error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *ServerError) Unwrap() error { return e.Err }

// WithDetail attaches a detail entry and returns the error for chaining.
func (e *ServerError) WithDetail(key string, value interface{}) *ServerError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// WithSuggestions attaches actionable suggestions.
func (e *ServerError) WithSuggestions(suggestions ...string) *ServerError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// New creates a ServerError with the given code.
func New(code Code, message string) *ServerError {
	return &ServerError{Code: code, Message: message}
}

// Wrap creates a ServerError wrapping a cause.
func Wrap(code Code, message string, err error) *ServerError {
	return &ServerError{Code: code, Message: message, Err: err}
}

// Validation creates a client-input validation error for a parameter.
func Validation(parameter, reason string, value interface{}) *ServerError {
	e := New(CodeValidation, fmt.Sprintf("invalid parameter %q: %s", parameter, reason))
	e.WithDetail("parameter", parameter)
	if value != nil {
		e.WithDetail("value", value)
	}
	return e
}

// NotFound creates a resource-not-found error.
func NotFound(resourceType, identifier string) *ServerError {
	e := New(CodeResourceNotFound, fmt.Sprintf("%s %q not found", resourceType, identifier))
	e.WithDetail("resource_type", resourceType)
	e.WithDetail("identifier", identifier)
	return e
}

// Timeout creates a deadline-exceeded error for a method.
func Timeout(method string, limit time.Duration) *ServerError {
	e := New(CodeTimeout, fmt.Sprintf("%s exceeded its %s deadline", method, limit))
	e.WithDetail("method", method)
	e.WithDetail("timeout_ms", limit.Milliseconds())
	return e
}

// CircuitOpen creates the short-circuit error with a retry-after hint.
func CircuitOpen(method string, retryAfter time.Duration) *ServerError {
	e := New(CodeCircuitOpen, fmt.Sprintf("%s is temporarily unavailable", method))
	e.WithDetail("method", method)
	e.WithDetail("retry_after_ms", retryAfter.Milliseconds())
	return e
}

// CodeOf extracts the taxonomy code from any error, defaulting to
// INTERNAL_ERROR for unclassified errors.
func CodeOf(err error) Code {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// AsServerError converts any error to a ServerError, wrapping unclassified
// errors as INTERNAL_ERROR.
func AsServerError(err error) *ServerError {
	if err == nil {
		return nil
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se
	}
	return Wrap(CodeInternal, "internal error", err)
}

// IsRetriable reports whether an error class may succeed on retry without
// client changes. Validation and not-found errors are never retried.
func IsRetriable(err error) bool {
	switch CodeOf(err) {
	case CodeDatabaseConnection, CodeTransient:
		return true
	}
	return false
}

// IsClientError reports whether the error is attributable to client input.
func IsClientError(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeResourceNotFound, CodeUnsupportedVersion:
		return true
	}
	return false
}

// CountsAgainstBreaker reports whether a failure should trip the circuit
// breaker. Client errors and short-circuits do not.
func CountsAgainstBreaker(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case CodeValidation, CodeResourceNotFound, CodeUnsupportedVersion, CodeCircuitOpen:
		return false
	}
	return true
}
