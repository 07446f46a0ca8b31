// Package apperr defines the error kinds returned by the engine and its stores.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can branch without string matching.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidArgument
	KindInvalidState
	KindConflict
	KindPersistence
	KindPartialApplication
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence_failure"
	case KindPartialApplication:
		return "partial_application"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried across package boundaries.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFound(op, msg string) *Error        { return New(KindNotFound, op, msg) }
func InvalidArgument(op, msg string) *Error { return New(KindInvalidArgument, op, msg) }
func InvalidState(op, msg string) *Error    { return New(KindInvalidState, op, msg) }
func Conflict(op, msg string) *Error        { return New(KindConflict, op, msg) }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the operation may succeed if repeated.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindPersistence:
		return true
	}
	return false
}
