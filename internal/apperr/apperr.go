// Package apperr defines the error taxonomy shared by every surface
// (HTTP, DIDComm, passkey) that calls into the core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for wire mapping and logging. Kinds are not
// Go types; every public operation returns either a success payload or
// an *Error carrying one of these.
type Kind string

const (
	Config         Kind = "config"
	Io             Kind = "io"
	Store          Kind = "store"
	SecretStore    Kind = "secret_store"
	Serialization  Kind = "serialization"
	Internal       Kind = "internal"
	NotFound       Kind = "not_found"
	Conflict       Kind = "conflict"
	Authentication Kind = "authentication"
	Unauthorized   Kind = "unauthorized"
	Forbidden      Kind = "forbidden"
	Validation     Kind = "validation"
	QuotaExceeded  Kind = "quota_exceeded"
)

// Error is the concrete error type every component returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to Internal for anything
// that isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
