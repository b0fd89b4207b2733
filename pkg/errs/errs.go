// Package errs defines the closed set of error kinds the core returns.
//
// The HTTP adapter (out of scope here) is expected to map each Kind to a
// status code; core methods never return a bare error for domain failures.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed sum type of the error categories the core can produce.
type Kind string

const (
	NotFound     Kind = "not_found"
	AlreadyExists Kind = "already_exists"
	Invalid      Kind = "invalid"
	Conflict     Kind = "conflict"
	Unavailable  Kind = "unavailable"
	Forbidden    Kind = "forbidden"
	Internal     Kind = "internal"
)

// Error is the single error type core methods return. Cause is preserved
// for logging but callers should branch on Kind, not on Cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind with no underlying cause. Callers
// branch on the kind with KindOf.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func AlreadyExistsf(format string, args ...any) *Error {
	return New(AlreadyExists, fmt.Sprintf(format, args...))
}

func Invalidf(format string, args ...any) *Error {
	return New(Invalid, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func Unavailablef(format string, args ...any) *Error {
	return New(Unavailable, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...any) *Error {
	return New(Forbidden, fmt.Sprintf(format, args...))
}

func Internalf(cause error, format string, args ...any) *Error {
	return Wrap(Internal, fmt.Sprintf(format, args...), cause)
}

// KindOf extracts the Kind of err, defaulting to Internal for unrecognized
// errors so callers always have something to switch on.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Internal
}
