// Package apperrors holds the error taxonomy shared by the stores, services and HTTP handlers.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

// Outcomes of waiting on an external transaction that was already broadcast.
var (
	// ErrTxReverted means the transaction was mined and failed, so nothing moved.
	ErrTxReverted = errors.New("transaction reverted")
	// ErrTxPending means the outcome is still unknown and the same transaction must be checked again.
	ErrTxPending = errors.New("transaction not confirmed yet")
)

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindExternal   Kind = "external_service"
	KindStore      Kind = "store"
	KindInternal   Kind = "internal"
)

// Error is a classified failure. Op names the operation that failed, Message is safe to show callers.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether re-invoking the same operation may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindExternal || e.Kind == KindStore
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func External(op string, err error) *Error {
	return &Error{Kind: KindExternal, Op: op, Message: "external service call failed", Err: err}
}

func Store(op string, err error) *Error {
	return &Error{Kind: KindStore, Op: op, Message: "store unavailable", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// Public is the message shown to API callers; internal causes stay in the logs.
func Public(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindExternal, KindStore:
		if e.Op != "" {
			return fmt.Sprintf("%s: %s", e.Op, e.Message)
		}
	}
	return e.Message
}
