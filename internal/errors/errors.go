package errors

import (
	"fmt"
)

// FusionError is the structured error type for the fusion engine.
// It carries enough context for the MCP tool adapter to map it onto the
// seven error kinds callers see (validation_error, not_found, precondition,
// backend_4xx, backend_5xx, integrity, internal) without re-deriving it from
// a bare Go error.
type FusionError struct {
	// Code is the unique error code (e.g., "ERR_201_RUN_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, NotFound, Backend, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs (e.g. run_id).
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion surfaced to the calling agent.
	Suggestion string
}

// Error implements the error interface.
func (e *FusionError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FusionError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *FusionError) Is(target error) bool {
	if t, ok := target.(*FusionError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for chaining.
func (e *FusionError) WithDetail(key, value string) *FusionError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion. Returns the error for chaining.
func (e *FusionError) WithSuggestion(suggestion string) *FusionError {
	e.Suggestion = suggestion
	return e
}

// New creates a new FusionError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *FusionError {
	return &FusionError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a FusionError from an existing error.
func Wrap(code string, err error) *FusionError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Validation creates a validation-kind error (malformed request).
func Validation(message string, cause error) *FusionError {
	return New(ErrCodeInvalidQuery, message, cause)
}

// NotFound creates a not-found-kind error (run/doc/publication missing).
func NotFound(code string, message string) *FusionError {
	return New(code, message, nil)
}

// Precondition creates a precondition-kind error (valid request, wrong state).
func Precondition(code string, message string) *FusionError {
	return New(code, message, nil)
}

// BackendHTTP creates an error for an upstream HTTP status outside 2xx.
func BackendHTTP(status int, message string, cause error) *FusionError {
	code := ErrCodeBackendHTTP5xx
	if status >= 400 && status < 500 {
		code = ErrCodeBackendHTTP4xx
	}
	err := New(code, message, cause)
	return err.WithDetail("status", fmt.Sprintf("%d", status))
}

// BackendTransport creates an error for an unreachable/timed-out backend.
func BackendTransport(message string, cause error) *FusionError {
	return New(ErrCodeBackendTimeout, message, cause)
}

// Integrity creates an error for stored state violating an invariant.
func Integrity(code string, message string) *FusionError {
	return New(code, message, nil)
}

// Internal creates an internal error not attributable to caller or backend.
func Internal(message string, cause error) *FusionError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FusionError); ok {
		return fe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FusionError); ok {
		return fe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a FusionError. Empty string otherwise.
func GetCode(err error) string {
	if fe, ok := err.(*FusionError); ok {
		return fe.Code
	}
	return ""
}

// GetCategory extracts the category from a FusionError. Empty string otherwise.
func GetCategory(err error) Category {
	if fe, ok := err.(*FusionError); ok {
		return fe.Category
	}
	return ""
}
