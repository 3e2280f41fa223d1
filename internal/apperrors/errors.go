// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable error class exposed in API responses.
// Values are part of the API contract and must not change.
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindTokenInvalid  Kind = "TOKEN_INVALID"
	KindRequestClosed Kind = "REQUEST_CLOSED"
	KindForbidden     Kind = "FORBIDDEN"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindInternal      Kind = "INTERNAL_ERROR"
)

// Error carries a Kind plus a human-readable message. Services return these;
// handlers translate Kind to an HTTP status and never see raw gorm errors.
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error for logging while keeping the
// outward Kind and Message unchanged.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Details: e.Details, cause: err}
}

// WithDetails attaches structured detail (e.g. per-field validation messages).
func (e *Error) WithDetails(details interface{}) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Details: details, cause: e.cause}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(message string) *Error    { return New(KindValidation, message) }
func TokenInvalid(message string) *Error  { return New(KindTokenInvalid, message) }
func RequestClosed(message string) *Error { return New(KindRequestClosed, message) }
func Forbidden(message string) *Error     { return New(KindForbidden, message) }
func NotFound(resource string) *Error     { return Newf(KindNotFound, "%s not found", resource) }
func Conflict(message string) *Error      { return New(KindConflict, message) }
func Internal(message string) *Error      { return New(KindInternal, message) }

// KindOf extracts the Kind from any error in the chain, KindInternal when
// the error is not one of ours.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AsError returns the *Error in the chain, or wraps err as KindInternal so
// callers always have a renderable error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "internal server error", cause: err}
}
