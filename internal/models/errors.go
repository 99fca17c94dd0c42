package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how a caller should react to them.
type ErrorKind int

const (
	// KindExternalService covers unreachable or misbehaving collaborators. Retryable with backoff.
	KindExternalService ErrorKind = iota
	// KindInvalidInput is a caller mistake. Never retried.
	KindInvalidInput
	// KindAuthentication rejects the request before any work begins.
	KindAuthentication
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindAuthentication:
		return "authentication"
	default:
		return "external_service"
	}
}

// Error is the single error type crossing package boundaries.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrAuthentication  = &Error{Kind: KindAuthentication}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidInput) works on wrapped chains.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

// ExternalService wraps err as a KindExternalService error. A nil err yields nil.
func ExternalService(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) && me.Kind == KindExternalService {
		return err
	}
	return &Error{Kind: KindExternalService, Op: op, Err: err}
}

// Unauthenticated builds a KindAuthentication error.
func Unauthenticated(op, msg string) error {
	return &Error{Kind: KindAuthentication, Op: op, Message: msg}
}

// KindOf classifies err. Anything that is not a *Error, including context
// cancellation and deadlines, counts as an external service failure.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindExternalService
}

// IsTimeout reports whether err came from a context deadline or cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Retryable reports whether the caller may retry err with backoff.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == KindExternalService
}
