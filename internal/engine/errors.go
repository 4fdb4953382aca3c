package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures for the transport layer.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindInvalidState     Kind = "invalid_state"
	KindConflict         Kind = "conflict"
	KindBusinessRule     Kind = "business_rule"
	KindUnknownReference Kind = "unknown_reference"
)

// Error is a typed domain failure. The engine never swallows one and never
// retries on its own; Conflict retries are the caller's call.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Forbiddenf(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func InvalidStatef(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func BusinessRulef(format string, args ...any) *Error {
	return newError(KindBusinessRule, format, args...)
}

func UnknownReff(format string, args ...any) *Error {
	return newError(KindUnknownReference, format, args...)
}

// KindOf extracts the kind of a domain error, or "" for plumbing errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
