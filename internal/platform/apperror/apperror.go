// Package apperror defines the error taxonomy shared by all domain services.
// Handlers map kinds onto HTTP status codes in one place so that services
// never import echo.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind int

const (
	// Internal is the default for unclassified failures.
	Internal Kind = iota
	// NotFound: missing patient/appointment/doctor/prescription.
	NotFound
	// InvalidInput: malformed or missing request fields.
	InvalidInput
	// InvalidTransition: illegal status or phase move.
	InvalidTransition
	// Unauthorized: role or lab mismatch.
	Unauthorized
	// Conflict: optimistic-concurrency loss; retryable after a fresh read.
	Conflict
	// PartialCascade: a downstream step failed after the primary write
	// committed. Logged and repaired by reconciliation, not surfaced.
	PartialCascade
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case InvalidTransition:
		return "invalid_transition"
	case Unauthorized:
		return "unauthorized"
	case Conflict:
		return "conflict"
	case PartialCascade:
		return "partial_cascade"
	default:
		return "internal"
	}
}

// Error carries a kind plus a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or Internal for plain errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the HTTP status code handlers should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case InvalidInput, InvalidTransition:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
