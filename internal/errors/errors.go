// Package errors provides the structured error envelope used across semcode.
//
// Every failure is tagged with a Kind (how surprising it is), a Class
// (whether retrying can help) and a stable "namespace:code" identifier
// that external consumers can match on.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies how an error should be treated by callers.
type Kind string

const (
	// KindExpected covers boundary failures: validation, lookups,
	// cancellation. These map to exit code 2 at the CLI.
	KindExpected Kind = "Expected"
	// KindInvariant covers broken internal assumptions. Never retriable.
	KindInvariant Kind = "Invariant"
	// KindUnexpected covers transport and environment failures.
	KindUnexpected Kind = "Unexpected"
)

// Class tells the retry policy whether re-issuing the operation can help.
type Class string

const (
	ClassRetriable    Class = "Retriable"
	ClassNonRetriable Class = "NonRetriable"
)

// Envelope is the structured error type for semcode.
type Envelope struct {
	// Kind is the error kind (Expected, Invariant, Unexpected).
	Kind Kind

	// Class marks whether the operation may be retried.
	Class Class

	// Code is the stable "namespace:code" identifier.
	Code string

	// Message is the human-readable error message.
	Message string

	// Meta contains additional context as key-value pairs.
	Meta map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Envelope) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Envelope) Unwrap() error {
	return e.Cause
}

// Is matches envelopes by code so errors.Is works across wrapping.
func (e *Envelope) Is(target error) bool {
	if t, ok := target.(*Envelope); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMeta adds a key-value pair to the envelope metadata.
// Returns the envelope for method chaining.
func (e *Envelope) WithMeta(key, value string) *Envelope {
	if e.Meta == nil {
		e.Meta = make(map[string]string)
	}
	e.Meta[key] = value
	return e
}

// WithCause attaches an underlying error.
func (e *Envelope) WithCause(cause error) *Envelope {
	e.Cause = cause
	return e
}

// New creates an envelope with explicit kind and class.
func New(kind Kind, class Class, code, message string) *Envelope {
	return &Envelope{Kind: kind, Class: class, Code: code, Message: message}
}

// Expected creates a non-retriable expected error (validation, lookup).
func Expected(code, message string) *Envelope {
	return New(KindExpected, ClassNonRetriable, code, message)
}

// Invariant creates an internal invariant violation. Never retriable.
func Invariant(message string) *Envelope {
	return New(KindInvariant, ClassNonRetriable, CodeInternal, message)
}

// Unexpected creates an unexpected error with the given class.
func Unexpected(class Class, code, message string) *Envelope {
	return New(KindUnexpected, class, code, message)
}

// Cancelled creates the canonical cancellation error for an operation.
func Cancelled(operation string) *Envelope {
	return Expected(CodeCancelled, "operation cancelled").WithMeta("operation", operation)
}

// InvalidInput creates a boundary validation error.
func InvalidInput(message string) *Envelope {
	return Expected(CodeInvalidInput, message)
}

// NotFound creates a lookup failure for the named entity.
func NotFound(entity string) *Envelope {
	return Expected(CodeNotFound, entity+" not found").WithMeta("entity", entity)
}

// PermissionDenied creates a permission failure.
func PermissionDenied(message string) *Envelope {
	return Expected(CodePermissionDenied, message)
}

// Timeout creates a retriable timeout error for an operation.
func Timeout(operation string) *Envelope {
	return Unexpected(ClassRetriable, CodeTimeout, "operation timed out").
		WithMeta("operation", operation)
}

// IO wraps an I/O error into a retriable transport envelope.
func IO(err error) *Envelope {
	if err == nil {
		return nil
	}
	return Unexpected(ClassRetriable, CodeIO, err.Error()).WithCause(err)
}

// Wrap converts an arbitrary error into an envelope with the given code.
// Envelopes pass through unchanged.
func Wrap(code string, err error) *Envelope {
	if err == nil {
		return nil
	}
	var env *Envelope
	if stderrors.As(err, &env) {
		return env
	}
	return Unexpected(ClassNonRetriable, code, err.Error()).WithCause(err)
}

// AsEnvelope extracts an envelope from an error chain, or wraps the error
// as core:internal when no envelope is present.
func AsEnvelope(err error) *Envelope {
	if err == nil {
		return nil
	}
	var env *Envelope
	if stderrors.As(err, &env) {
		return env
	}
	return Unexpected(ClassNonRetriable, CodeInternal, err.Error()).WithCause(err)
}

// CodeOf returns the envelope code, or "" for non-envelope errors.
func CodeOf(err error) string {
	var env *Envelope
	if stderrors.As(err, &env) {
		return env.Code
	}
	return ""
}

// KindOf returns the envelope kind, defaulting to Unexpected.
func KindOf(err error) Kind {
	var env *Envelope
	if stderrors.As(err, &env) {
		return env.Kind
	}
	return KindUnexpected
}

// IsRetriable reports whether the retry policy may re-issue the operation.
func IsRetriable(err error) bool {
	var env *Envelope
	if stderrors.As(err, &env) {
		return env.Class == ClassRetriable
	}
	return false
}

// IsCancelled reports whether the error chain carries core:cancelled.
func IsCancelled(err error) bool {
	return CodeOf(err) == CodeCancelled
}

// Is re-exports the standard errors.Is for callers of this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As re-exports the standard errors.As for callers of this package.
func As(err error, target any) bool { return stderrors.As(err, target) }
