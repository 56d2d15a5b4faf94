package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error with the same Code, so that
// errors.Is matches a Clone of a predefined error against the original.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors, one per taxonomy entry from the error handling design.
// Handlers translate service-layer failures into these via FromError/Clone
// rather than constructing ad-hoc codes.
var (
	ErrValidation         = New("VALIDATION", http.StatusBadRequest, "validation failed")
	ErrAuthRequired       = New("AUTH_REQUIRED", http.StatusUnauthorized, "authentication required")
	ErrAuthInvalid        = New("AUTH_INVALID", http.StatusUnauthorized, "invalid or expired credentials")
	ErrAuthz              = New("AUTHZ", http.StatusForbidden, "not permitted")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrAlreadyInFlight    = New("CONFLICT", http.StatusConflict, "submission already in flight")
	ErrUpstreamTransient  = New("UPSTREAM_TRANSIENT", http.StatusBadGateway, "upstream service temporarily unavailable")
	ErrUpstreamReject     = New("UPSTREAM_REJECT", http.StatusBadGateway, "upstream service rejected the request")
	ErrStorageUnavailable = New("STORAGE_UNAVAILABLE", http.StatusServiceUnavailable, "storage backends unavailable")
	ErrInternal           = New("INTERNAL", http.StatusInternalServerError, "internal server error")

	// ErrCacheMiss signals a cache lookup found nothing; callers fall through
	// to the authoritative store rather than treating it as a failure.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error, defaulting to INTERNAL.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// IsCacheMiss reports whether err represents a cache miss.
func IsCacheMiss(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCacheMiss.Code
	}
	return false
}
