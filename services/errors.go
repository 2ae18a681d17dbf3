package services

import (
	"errors"
	"fmt"

	"home-services-server/metrics"
	"home-services-server/repository"
)

// Kind classifies a service error; the HTTP layer maps each kind to a status code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnavailable
)

// Error is a failure the caller can act on. Its message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func Unavailable(msg string) *Error  { return &Error{Kind: KindUnavailable, Message: msg} }

// KindOf extracts the kind of a service error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// lookupErr turns a repository miss into a NotFound with the given message.
func lookupErr(err error, msg string) error {
	if repository.IsNotFound(err) {
		return NotFound(msg)
	}
	return err
}

var errStaleBooking = Conflict("booking was modified by another request, reload and retry")

// writeErr turns an optimistic-concurrency failure into a Conflict.
func writeErr(err error) error {
	if errors.Is(err, repository.ErrStaleWrite) {
		metrics.RecordConflict("stale")
		return errStaleBooking
	}
	return err
}
