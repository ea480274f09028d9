package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error produced by leapmap matches exactly one of these
// through errors.Is.
var (
	// ErrConfiguration covers duplicate or missing statement ids, malformed
	// templates and fragment cycles. Raised at build time.
	ErrConfiguration = errors.New("configuration error")

	// ErrBinding covers missing or unconvertible parameter values.
	ErrBinding = errors.New("binding error")

	// ErrMapping covers unmatched or ambiguous result columns under strict mode.
	ErrMapping = errors.New("mapping error")

	// ErrExecution wraps any failure surfaced by the database adapter.
	ErrExecution = errors.New("execution error")

	// ErrCache covers serialization failures in cache decorators.
	ErrCache = errors.New("cache error")
)

// Error is the typed failure returned by all layers. It identifies the
// statement (when known) and the underlying cause.
type Error struct {
	Kind        error  // One of the Err* sentinels
	StatementID string // Statement the failure belongs to, if any
	Resource    string // Template, fragment, mapper type or cache that raised it
	Message     string
	Cause       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.StatementID != "" {
		fmt.Fprintf(&b, " in statement %q", e.StatementID)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, " (%s)", e.Resource)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Errorf creates an Error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around cause.
// If cause is already an *Error of the same kind it is returned with the
// statement id filled in when missing.
func Wrap(kind error, statementID string, cause error) *Error {
	var existing *Error
	if errors.As(cause, &existing) && existing.Kind == kind {
		if existing.StatementID == "" {
			existing.StatementID = statementID
		}
		return existing
	}
	return &Error{Kind: kind, StatementID: statementID, Cause: cause}
}

// WithStatement sets the statement id and returns e.
func (e *Error) WithStatement(id string) *Error {
	e.StatementID = id
	return e
}

// WithResource sets the resource name and returns e.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithCause sets the underlying cause and returns e.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// KindOf returns the kind sentinel of err, or nil when err is not a leapmap error.
func KindOf(err error) error {
	for _, kind := range []error{ErrConfiguration, ErrBinding, ErrMapping, ErrExecution, ErrCache} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
