// Package joyerr implements the error taxonomy every joyrpc component
// surfaces through its completion handle (spec §7): a stable code, a
// redacted message, and whether Route may retry the call.
package joyerr

import (
	"errors"
	"fmt"
)

// Code identifies one class of the spec §7 error taxonomy.
type Code int

const (
	// CodeConfig is ConfigError — invalid or missing parameter; fatal at bind time.
	CodeConfig Code = iota
	// CodeInit is InitError — resource acquisition failed before OPENED.
	CodeInit
	// CodeTransport is TransportError — connection-level failure; retriable.
	CodeTransport
	// CodeSerialization is SerializationError — frame encode/decode failed; non-retriable.
	CodeSerialization
	// CodeTimeout is TimeoutError — deadline reached.
	CodeTimeout
	// CodeOverload is OverloadError — queue full or payload over cap.
	CodeOverload
	// CodeNoAvailableNode is NoAvailableNode — Cluster has no eligible node.
	CodeNoAvailableNode
	// CodeRemote is RemoteError — propagated application exception; never retried.
	CodeRemote
	// CodeShutdown is ShutdownError — operation attempted after close/shutdown.
)

const CodeShutdown Code = 8

func (c Code) String() string {
	switch c {
	case CodeConfig:
		return "ConfigError"
	case CodeInit:
		return "InitError"
	case CodeTransport:
		return "TransportError"
	case CodeSerialization:
		return "SerializationError"
	case CodeTimeout:
		return "TimeoutError"
	case CodeOverload:
		return "OverloadError"
	case CodeNoAvailableNode:
		return "NoAvailableNode"
	case CodeRemote:
		return "RemoteError"
	case CodeShutdown:
		return "ShutdownError"
	default:
		return "UnknownError"
	}
}

// retriable reports the default retry policy for each code, per spec §7:
// Retriable = {transport-level errors, explicit server-side "retry" signal}.
// Non-retriable = {application exceptions, timeout past hard deadline,
// serialization failure}.
func (c Code) retriable() bool {
	switch c {
	case CodeTransport, CodeNoAvailableNode:
		return true
	default:
		return false
	}
}

// Error is the concrete error type returned by every joyrpc completion
// handle. CorrelationID is request id + channel id, per spec §7.
type Error struct {
	Code          Code
	Message       string
	CorrelationID string
	cause         error
	retriable     *bool
}

// New builds an Error with the default retriability for code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that wraps cause; cause is preserved for errors.Is/As
// but never included verbatim in Message (Message must stay redacted).
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithCorrelation attaches a correlation id (request id + channel id) and
// returns e for chaining.
func (e *Error) WithCorrelation(id string) *Error {
	e.CorrelationID = id
	return e
}

// WithRetriable overrides the default retry policy for this instance — used
// when a server signals an explicit "retry" outcome for an otherwise
// non-retriable code.
func (e *Error) WithRetriable(v bool) *Error {
	e.retriable = &v
	return e
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("joyrpc: %s: %s [correlation=%s]", e.Code, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("joyrpc: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retriable reports whether Route may re-attempt this call.
func (e *Error) Retriable() bool {
	if e.retriable != nil {
		return *e.retriable
	}
	return e.Code.retriable()
}

// As is a convenience wrapper around errors.As for the common case of
// testing whether err is (or wraps) a *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err is a *Error of the given code.
func IsCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
