// Package apperror provides a structured error type for the HTTP boundary.
//
// Handlers in internal/httpapi pass every error to writeAppError, which
// translates it to a status code and a safe message, never leaking
// internal details (query text, stack traces, driver errors) to a client.
// Errors that are not an *apperror.Error become a 500.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Type classifies an error for status-code mapping and safe messaging.
type Type string

const (
	TypeValidation Type = "validation"
	TypeAuth       Type = "auth"
	TypeNotFound   Type = "not_found"
	TypeConflict   Type = "conflict"
	TypeTimeout    Type = "timeout"
	TypeRateLimit  Type = "rate_limit"
	TypeDatabase   Type = "database"
	TypeNetwork    Type = "network"
	TypeInternal   Type = "internal"
)

var statusByType = map[Type]int{
	TypeValidation: http.StatusBadRequest,
	TypeAuth:       http.StatusUnauthorized,
	TypeNotFound:   http.StatusNotFound,
	TypeConflict:   http.StatusConflict,
	TypeTimeout:    http.StatusRequestTimeout,
	TypeRateLimit:  http.StatusTooManyRequests,
	TypeDatabase:   http.StatusInternalServerError,
	TypeNetwork:    http.StatusInternalServerError,
	TypeInternal:   http.StatusInternalServerError,
}

// Error is a classified, HTTP-status-aware error.
type Error struct {
	Type       Type
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

func New(t Type, message string) *Error {
	return &Error{
		Type:       t,
		Message:    message,
		StatusCode: statusFor(t),
	}
}

func Wrap(cause error, t Type, message string) *Error {
	return &Error{
		Type:       t,
		Message:    message,
		StatusCode: statusFor(t),
		Cause:      cause,
	}
}

func Wrapf(cause error, t Type, format string, args ...interface{}) *Error {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func statusFor(t Type) int {
	if s, ok := statusByType[t]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

func (e *Error) WithDetailsf(format string, args ...interface{}) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// Predefined constructors for the error kinds called out in spec.md §7.

func NewValidationError(message string) *Error {
	return New(TypeValidation, message)
}

func NewNotFoundError(resource string) *Error {
	return New(TypeNotFound, resource+" not found")
}

func NewAuthError(message string) *Error {
	return New(TypeAuth, message)
}

func NewConflictError(message string) *Error {
	return New(TypeConflict, message)
}

func NewTimeoutError(operation string) *Error {
	return New(TypeTimeout, "operation timed out: "+operation)
}

func NewDatabaseError(operation string, cause error) *Error {
	return Wrap(cause, TypeDatabase, "database operation failed: "+operation)
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t Type) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Type == t
	}
	return false
}

// GetType returns err's Type, or TypeInternal if err is not an *Error.
func GetType(err error) Type {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Type
	}
	return TypeInternal
}

// GetStatusCode returns the HTTP status for err.
func GetStatusCode(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return http.StatusInternalServerError
}

// Safe, generic messages that never echo internal detail to a client.
var Messages = struct {
	ResourceNotFound       string
	AuthenticationFailed   string
	OperationTimeout       string
	RateLimitExceeded      string
	ConcurrentModification string
	InternalError          string
}{
	ResourceNotFound:       "The requested resource was not found",
	AuthenticationFailed:   "Authentication failed",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Rate limit exceeded, please try again later",
	ConcurrentModification: "The resource was modified concurrently, please retry",
	InternalError:          "An internal error occurred",
}

// SafeErrorMessage returns a message safe to surface to an API client.
func SafeErrorMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "An unexpected error occurred"
	}
	switch ae.Type {
	case TypeValidation:
		return ae.Message
	case TypeNotFound:
		return Messages.ResourceNotFound
	case TypeAuth:
		return Messages.AuthenticationFailed
	case TypeTimeout:
		return Messages.OperationTimeout
	case TypeRateLimit:
		return Messages.RateLimitExceeded
	case TypeConflict:
		return Messages.ConcurrentModification
	default:
		return Messages.InternalError
	}
}

// Chain joins a set of errors into one, filtering out nils. Returns nil if
// every argument is nil, and returns the error unmodified if exactly one
// is non-nil.
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}
	msgs := make([]string, len(nonNil))
	for i, e := range nonNil {
		msgs[i] = e.Error()
	}
	return errors.New(strings.Join(msgs, " -> "))
}

// LogFields returns a structured map suitable for a logger, never
// including the safe-message substitution — only for server-side logs.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{"error": err.Error()}
	var ae *Error
	if !errors.As(err, &ae) {
		return fields
	}
	fields["error_type"] = string(ae.Type)
	fields["status_code"] = ae.StatusCode
	if ae.Details != "" {
		fields["error_details"] = ae.Details
	}
	if ae.Cause != nil {
		fields["underlying_error"] = ae.Cause.Error()
	}
	return fields
}
