package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeUnavailable   ErrorType = "unavailable"
	ErrorTypeBadRequest    ErrorType = "bad_request"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeConfiguration ErrorType = "configuration"
)

// Error represents a structured error with additional context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]any
}

// NewError creates a new structured error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is. A target with a message is a sentinel and only
// matches errors carrying that same message; a target with an empty message
// matches any error of its type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Message == "" || e.Message == t.Message
}

// HTTPStatusCode returns the appropriate HTTP status code for the error type
func (e *Error) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeNotFound:
		return 404
	case ErrorTypeBadRequest:
		return 400
	case ErrorTypeTimeout:
		return 408
	case ErrorTypeRateLimit:
		return 429
	case ErrorTypeUnavailable:
		return 503
	default:
		return 500
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType reports whether any error in err's chain is an *Error of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Type == errType {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New is errors.New from the standard library.
func New(text string) error {
	return stderrors.New(text)
}
