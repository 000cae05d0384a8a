// Package errs defines the error taxonomy shared by the booking core.  Every
// failure that leaves a core component is an *Error carrying a Kind, so the
// HTTP layer can pick a status code and callers can tell retryable failures
// from terminal ones without string matching.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind uint8

const (
	// Internal is the zero value so an unclassified error is never mistaken
	// for a caller error.
	Internal Kind = iota
	InvalidInput
	InvalidRange
	NotFound
	InsufficientInventory
	InvalidState
	ProviderRejected
	ProviderUnavailable
	PartialFailure
	Unauthorized
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case InvalidRange:
		return "invalid_range"
	case NotFound:
		return "not_found"
	case InsufficientInventory:
		return "insufficient_inventory"
	case InvalidState:
		return "invalid_state"
	case ProviderRejected:
		return "provider_rejected"
	case ProviderUnavailable:
		return "provider_unavailable"
	case PartialFailure:
		return "partial_failure"
	case Unauthorized:
		return "unauthorized"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps a kind onto the status code returned to API clients.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidInput, InvalidRange:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case InsufficientInventory, InvalidState:
		return http.StatusConflict
	case ProviderRejected:
		return http.StatusUnprocessableEntity
	case ProviderUnavailable:
		return http.StatusServiceUnavailable
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error returned by core components.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "committer.Commit".
	Op  string
	Msg string
	// ProviderStatus and ProviderPayload carry the flight provider's HTTP
	// status and raw body for ProviderRejected/ProviderUnavailable.
	ProviderStatus  int
	ProviderPayload []byte
	Err             error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error of the given kind.
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap attaches a kind and operation to an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is E with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// Internal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns a client-safe message for err.  Internal errors are
// reduced to a generic string so driver details never leak.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal {
		return "internal error"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}
