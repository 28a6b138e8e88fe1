// Package apperr defines the application error taxonomy. Every failure the
// platform reports to a client carries exactly one stable kind.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of an application error.
type Kind string

const (
	// KindAuthentication means the connection credential was missing or
	// invalid. This is the only kind that terminates a connection.
	KindAuthentication Kind = "authentication"
	// KindForbidden means the caller is not a participant or not the owner
	// of the resource.
	KindForbidden Kind = "forbidden"
	// KindNotFound means the referenced conversation, message, user or
	// notification does not exist.
	KindNotFound Kind = "not_found"
	// KindValidation means the inbound request or event was malformed.
	KindValidation Kind = "validation"
	// KindStorage means the backing store failed; the operation is not
	// retried automatically.
	KindStorage Kind = "storage"
)

// Error is an application error with a stable kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Authentication returns a KindAuthentication error.
func Authentication(message string) *Error { return New(KindAuthentication, message) }

// Forbidden returns a KindForbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// NotFound returns a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Validation returns a KindValidation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// Storage wraps a store failure.
func Storage(message string, err error) *Error { return Wrap(KindStorage, message, err) }

// KindOf extracts the kind from err, defaulting to KindStorage for errors
// that did not originate in this package.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStorage
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the client-facing message for err without internal
// details from wrapped causes.
func UserMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}
