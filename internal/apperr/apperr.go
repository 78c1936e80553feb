// Package apperr defines the error kinds surfaced by the lifecycle engine.
// Callers branch on Kind instead of inspecting messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindInvalidTransition      Kind = "INVALID_TRANSITION"
	KindLocked                 Kind = "LOCKED"
	KindPreconditionFailed     Kind = "PRECONDITION_FAILED"
	KindIdempotencyKeyConflict Kind = "IDEMPOTENCY_KEY_CONFLICT"
	KindUnavailable            Kind = "UNAVAILABLE"
	KindValidation             Kind = "VALIDATION"
	KindInternal               Kind = "INTERNAL"
)

// Error carries a Kind plus a human readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) error { return New(KindNotFound, format, args...) }

func InvalidTransition(from, to string) error {
	return New(KindInvalidTransition, "transition %s -> %s is not allowed", from, to)
}

func Locked(format string, args ...any) error { return New(KindLocked, format, args...) }

func PreconditionFailed(format string, args ...any) error {
	return New(KindPreconditionFailed, format, args...)
}

func IdempotencyKeyConflict(key string) error {
	return New(KindIdempotencyKeyConflict, "idempotency key %q was already used for a different request", key)
}

func Unavailable(err error) error {
	return Wrap(KindUnavailable, err, "transaction could not complete, retry with the same idempotency key")
}

func Validation(format string, args ...any) error { return New(KindValidation, format, args...) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a Kind to the status code handlers respond with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition, KindLocked, KindPreconditionFailed:
		return http.StatusConflict
	case KindIdempotencyKeyConflict, KindValidation:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
