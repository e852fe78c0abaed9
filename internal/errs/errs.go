// Package errs defines the closed set of error kinds leaf operations in
// datalad-core report toward the result bus.
//
// Kind is a proper Go type rather than a bare string "class" tag, so
// switches over it are exhaustive-checkable, and wraps github.com/pkg/errors
// for cause chains instead of a hand-rolled cause field.
package errs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the fixed set of error kinds every command classifies its
// failures into. It is never extended at runtime; new kinds are a deliberate,
// reviewed change, not a plugin point.
type Kind string

const (
	NoDataset               Kind = "NoDataset"
	InvalidArgument         Kind = "InvalidArgument"
	MissingExternalDependency Kind = "MissingExternalDependency"
	RemoteNotAvailable      Kind = "RemoteNotAvailable"
	Transfer                Kind = "Transfer"
	Permission              Kind = "Permission"
	Conflict                Kind = "Conflict"
	IntegrityMismatch       Kind = "IntegrityMismatch"
	Cancelled               Kind = "Cancelled"
	External                Kind = "External"
	Internal                Kind = "Internal"
)

// Error is the concrete error type carried by a Result Record of status
// "error".
type Error struct {
	Kind    Kind
	Message string
	// Context carries dataset/path/remote identifiers useful to act on the
	// error without parsing Message.
	Context map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Cause implements the github.com/pkg/errors Causer interface so
// errors.Cause(e) unwinds to the underlying infrastructure error.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is/As from the standard library too.
func (e *Error) Unwrap() error { return e.cause }

// New builds a leaf error of the given kind with no wrapped cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Context: map[string]string{}}
}

// Wrap builds an error of the given kind around an infrastructure error,
// preserving its cause chain for later inspection.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return New(kind, format, args...)
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Context: map[string]string{}, cause: errors.WithStack(cause)}
}

// With attaches a context field (dataset id, path, remote name, …) and
// returns the same error for chaining at the call site.
func (e *Error) With(key, value string) *Error {
	e.Context[key] = value
	return e
}

// Chain renders the full cause chain, outermost error first and root cause
// last, for `-l debug`
// rendering.
func (e *Error) Chain() []string {
	var out []string
	var cur error = e
	for cur != nil {
		out = append(out, cur.Error())
		type causer interface{ Cause() error }
		c, ok := cur.(causer)
		if !ok {
			break
		}
		next := c.Cause()
		if next == nil || next == cur {
			break
		}
		cur = next
	}
	return out
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, else
// returns Internal — the catch-all for infrastructure exceptions that leak
// out of a command's top frame.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
