// Package gwerr defines the error taxonomy shared by every gateway
// component: a single discriminated error type carrying the PLC and
// tag context needed to report a failure without re-deriving it at
// the call site.
package gwerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and reporting purposes.
type Kind int

const (
	// Unknown covers any failure that doesn't fit a more specific kind.
	Unknown Kind = iota
	// Configuration marks a bad or missing descriptor, never retryable.
	Configuration
	// Validation marks a write rejected by range/type/readonly rules.
	Validation
	// AddressResolution marks an unknown tag name.
	AddressResolution
	// Encoding marks a decode/encode failure over register words.
	Encoding
	// Connection marks a pool/session-level failure (no client available,
	// dial failed, circuit open). Retryable.
	Connection
	// Protocol marks a Modbus exception response from the device.
	Protocol
	// Timeout marks a context deadline exceeded while waiting on a
	// session or a wire round trip. Retryable.
	Timeout
	// Cancelled marks a context cancellation initiated by the caller.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "ConfigurationError"
	case Validation:
		return "ValidationError"
	case AddressResolution:
		return "AddressResolutionError"
	case Encoding:
		return "EncodingError"
	case Connection:
		return "ConnectionError"
	case Protocol:
		return "ProtocolError"
	case Timeout:
		return "Timeout"
	case Cancelled:
		return "Cancelled"
	default:
		return "UnknownError"
	}
}

// Retryable reports whether an operation that failed with this kind
// of error may reasonably be retried by the caller. Connection and
// Timeout failures are transient; everything else indicates a request
// that will fail again unchanged.
func (k Kind) Retryable() bool {
	switch k {
	case Connection, Timeout:
		return true
	default:
		return false
	}
}

// Error is the concrete error type returned across every component
// boundary in this repository.
type Error struct {
	Kind    Kind
	PLCID   string
	TagName string
	Address int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var loc string
	switch {
	case e.PLCID != "" && e.TagName != "":
		loc = fmt.Sprintf("%s/%s", e.PLCID, e.TagName)
	case e.PLCID != "":
		loc = e.PLCID
	default:
		loc = "-"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, loc, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, loc, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPLC returns a copy of e with the PLC id attached.
func (e *Error) WithPLC(plcID string) *Error {
	c := *e
	c.PLCID = plcID
	return &c
}

// WithTag returns a copy of e with the tag name attached.
func (e *Error) WithTag(tagName string) *Error {
	c := *e
	c.TagName = tagName
	return &c
}

// WithAddress returns a copy of e with the resolved address attached.
func (e *Error) WithAddress(address int) *Error {
	c := *e
	c.Address = address
	return &c
}

// Of reports the Kind of err, or Unknown if err is not a *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
