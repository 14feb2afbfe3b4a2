package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures so the driver loop can decide between
// retrying, skipping, and aborting the run.
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeFilterRejected ErrorType = "filter_rejected"
	ErrorTypeParsing        ErrorType = "parsing"
	ErrorTypeIO             ErrorType = "io"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error represents a scrape or download error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a typed error without an HTTP status code
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// IsType checks whether err (or anything it wraps) is a typed error of the
// given type.
func IsType(err error, t ErrorType) bool {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type == t
	}
	return false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeServerError:
		return true
	case ErrorTypeFilterRejected, ErrorTypeParsing, ErrorTypeIO, ErrorTypeNotFound:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
