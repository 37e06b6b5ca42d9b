// Package apperr defines the error kinds surfaced by group chat operations
// and their mapping onto HTTP status codes.
//
// Stores return plain sentinel errors; the chat service translates them into
// an *Error carrying a Kind so that handlers can pick a status without
// string matching.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindCapacity
	KindLastOwner
	KindInvalidArgument
	KindUpstreamFailure
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindCapacity:
		return "capacity"
	case KindLastOwner:
		return "last_owner"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is an application error with a user-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches kind and msg to err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string) *Error        { return New(KindNotFound, msg) }
func Forbidden(msg string) *Error       { return New(KindForbidden, msg) }
func Conflict(msg string) *Error        { return New(KindConflict, msg) }
func Capacity(msg string) *Error        { return New(KindCapacity, msg) }
func LastOwner(msg string) *Error       { return New(KindLastOwner, msg) }
func InvalidArgument(msg string) *Error { return New(KindInvalidArgument, msg) }
func RateLimited(msg string) *Error     { return New(KindRateLimited, msg) }

// KindOf returns the Kind of the first *Error in err's chain,
// or KindUnknown when there is none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden, KindLastOwner, KindCapacity:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client. Errors without a
// Kind are internal and get a generic message.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindUnknown {
		if ae.Msg != "" {
			return ae.Msg
		}
		return ae.Kind.String()
	}
	return "internal server error"
}
