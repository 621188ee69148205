// Package faults defines the error taxonomy shared by the broker's components.
//
// Every failure a caller may need to react to is classified into one of a small
// set of kinds. Components return wrapped sentinels built from *Error so that
// both errors.Is (exact condition) and KindOf (category) work on the result.
package faults

import (
	"errors"
	"fmt"
)

// Kind categorizes an error by how the broker responds to it.
type Kind int

const (
	// Internal is anything unanticipated. It is logged and converted to a generic apology.
	Internal Kind = iota
	// Validation covers bad or missing trade fields; the caller can correct them.
	Validation
	// NotFound covers absent users or positions.
	NotFound
	// Upstream covers an unavailable quote source or language model.
	Upstream
	// InsufficientResource covers missing funds or shares.
	InsufficientResource
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Upstream:
		return "upstream_unavailable"
	case InsufficientResource:
		return "insufficient_resource"
	default:
		return "internal"
	}
}

// Error is a classified error. Code is a stable machine-readable identifier.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// CodeOf reports the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if err == nil {
		return ""
	}
	return "internal_error"
}
