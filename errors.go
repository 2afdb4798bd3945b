// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"errors"
	"fmt"
	"log/slog"
)

// Error is the error form of a failed operation. It is returned by Token.Err
// and by constructors that fail with ReasonInitializationFailed. It may wrap an
// underlying error using Go standard error wrapping.
type Error struct {
	Code    ReasonCode
	Kind    OperationKind
	Message string
	wrapped error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Kind != 0 {
		msg = fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", msg, e.wrapped)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Attrs exposes the error's fields for structured logging.
func (e *Error) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.Int("reason_code", int(e.Code)),
		slog.String("reason", e.Code.String()),
	}
	if e.Kind != 0 {
		attrs = append(attrs, slog.String("operation", e.Kind.String()))
	}
	return attrs
}

// Is matches another *Error by reason code, so errors.Is can be used with a
// bare &Error{Code: ...} target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && (t.Kind == 0 || t.Kind == e.Kind)
}

// InvalidArgumentError indicates that the user has provided an invalid value
// for an option or configuration source. It may wrap an underlying error using
// Go standard error wrapping.
type InvalidArgumentError struct {
	wrapped error
	message string
}

func (e *InvalidArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.wrapped
}

// ConnectionError indicates an issue opening the network connection to the
// MQTT server. It may wrap an underlying error using Go standard error
// wrapping.
type ConnectionError struct {
	wrapped error
	message string
}

func (e *ConnectionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

// ReasonError is returned by a transport to attach a protocol reason code to
// a failed send. Errors of any other type are reported as
// ReasonTransportError.
type ReasonError struct {
	Code    ReasonCode
	Message string
}

func (e *ReasonError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

// reasonOf extracts the reason code a transport attached to err.
func reasonOf(err error) ReasonCode {
	var re *ReasonError
	if errors.As(err, &re) && re.Code.IsProtocol() {
		return re.Code
	}
	return ReasonTransportError
}
