// Package objferr defines the error-kind taxonomy shared by the filesystem
// façade and the retry decorator. It is a leaner sibling of a general
// application error type, scoped to exactly the kinds this adapter's retry
// envelope needs to classify.
package objferr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry-envelope purposes.
type Kind int

const (
	Unknown Kind = iota
	InvalidArgument
	NotFound
	OutOfRange
	FailedPrecondition
	Internal
	Unavailable
	DeadlineExceeded
	Aborted
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case OutOfRange:
		return "OutOfRange"
	case FailedPrecondition:
		return "FailedPrecondition"
	case Internal:
		return "Internal"
	case Unavailable:
		return "Unavailable"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every component of this module.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, &Error{Kind: X}) comparisons by Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind of err, defaulting to Unknown for errors that
// were not produced by this package (e.g. raw AWS SDK errors that were not
// translated).
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// New constructs an *Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}
