package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the pipeline must react to it.
type Kind string

const (
	// KindTransient covers timeouts, intermittent 5xx responses and
	// rate-limit signals. Worth retrying.
	KindTransient Kind = "transient"
	// KindTerminalFlow covers failures that permanently sink one flow
	// (corrupt archive, permanent 4xx, malformed record) without
	// affecting the rest of the app.
	KindTerminalFlow Kind = "terminal_flow"
	// KindTerminalApp covers app-level failures (listing unreachable,
	// local staging broken for this app). The run moves on to the next app.
	KindTerminalApp Kind = "terminal_app"
	// KindFatal covers run-ending conditions: disk exhaustion, storage
	// credential rejection. No further apps are touched.
	KindFatal Kind = "fatal"
)

// Error is the classified failure value every layer returns upward.
// The orchestrator never sees a bare, unclassified error.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Transient marks err as retryable.
func Transient(err error, message string) *Error {
	return Wrap(KindTransient, err, message)
}

// TerminalFlow marks err as permanently failing one flow.
func TerminalFlow(err error, message string) *Error {
	return Wrap(KindTerminalFlow, err, message)
}

// TerminalApp marks err as permanently failing one app.
func TerminalApp(err error, message string) *Error {
	return Wrap(KindTerminalApp, err, message)
}

// Fatal marks err as ending the whole run.
func Fatal(err error, message string) *Error {
	return Wrap(KindFatal, err, message)
}

// KindOf extracts the classification from err. Unclassified errors come
// back as transient: redoing work is safe, skipping it is not.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindTransient
}

// IsFatal reports whether err must abort the entire run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindFatal
}

// ClassifyStatusCode maps an HTTP status to a failure kind.
func ClassifyStatusCode(statusCode int) Kind {
	switch {
	case statusCode == 0: // network error, no response
		return KindTransient
	case statusCode == 429:
		return KindTransient
	case statusCode >= 500:
		return KindTransient
	case statusCode >= 400:
		return KindTerminalFlow
	default:
		return KindTransient
	}
}

// FromStatusCode builds a classified error for a failed HTTP exchange.
func FromStatusCode(statusCode int, message string) *Error {
	return &Error{Kind: ClassifyStatusCode(statusCode), Message: message, Code: statusCode}
}
