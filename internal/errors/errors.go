package errors

import (
	"fmt"
)

// ChordexError is the structured error type for Chordex.
// It provides rich context for error handling, logging, and user presentation.
type ChordexError struct {
	// Code is the unique error code (e.g., "ERR_302_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *ChordexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ChordexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ChordexError.
func (e *ChordexError) Is(target error) bool {
	if t, ok := target.(*ChordexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ChordexError) WithDetail(key, value string) *ChordexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ChordexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ChordexError {
	return &ChordexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ChordexError from an existing error.
// The error's message becomes the ChordexError message.
func Wrap(code string, err error) *ChordexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Newf creates a new ChordexError with a formatted message.
func Newf(code string, format string, args ...any) *ChordexError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// DimensionMismatch creates the error for a query/corpus dimensionality
// conflict. The query vector is never truncated or padded.
func DimensionMismatch(expected, got int) *ChordexError {
	return Newf(ErrCodeDimensionMismatch, "dimension mismatch: corpus is %d-dimensional, query is %d-dimensional", expected, got)
}

// VoicingNotFound creates the error for an unknown voicing ID.
func VoicingNotFound(id string) *ChordexError {
	return Newf(ErrCodeVoicingNotFound, "voicing %q not found in index", id)
}

// NotInitialized creates the error returned by search operations invoked
// before Initialize has committed the corpus.
func NotInitialized(component string) *ChordexError {
	return Newf(ErrCodeNotInitialized, "%s is not initialized", component)
}

// CacheVersion creates the error for a cache format version mismatch.
func CacheVersion(expected, got uint32) *ChordexError {
	return Newf(ErrCodeCacheVersion, "cache format version %d does not match expected %d, rebuild required", got, expected)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a ChordexError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*ChordexError); ok {
		return ce.Retryable
	}
	return false
}

// GetCode extracts the error code from a ChordexError.
// Returns empty string if not a ChordexError.
func GetCode(err error) string {
	if ce, ok := err.(*ChordexError); ok {
		return ce.Code
	}
	return ""
}

// HasCode reports whether err (or any error in its chain) carries the code.
func HasCode(err error, code string) bool {
	for err != nil {
		if ce, ok := err.(*ChordexError); ok && ce.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
