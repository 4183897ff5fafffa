// Package tagerr defines the error kinds returned by the tagging engine.
package tagerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Usage is a programmer error. It is never retried.
	Usage Kind = iota + 1
	// Uniqueness is a unique constraint violation. Only the slug and
	// insert-if-absent paths handle it; elsewhere it is returned as is.
	Uniqueness
	// Validation wraps bad caller input such as an invalid pattern.
	Validation
	// Storage wraps every other persistence failure.
	Storage
)

func (k Kind) String() string {
	switch k {
	case Usage:
		return "usage"
	case Uniqueness:
		return "uniqueness"
	case Validation:
		return "validation"
	case Storage:
		return "storage"
	default:
		return "unknown"
	}
}

var (
	ErrRequiresPersistedRecord = &Error{Kind: Usage, Op: "tags", Err: errors.New("record must be saved before its tags can be managed")}
	ErrNotCallable             = &Error{Kind: Usage, Op: "merge", Err: errors.New("duplicate selector must be a non-nil function")}
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UnsupportedTagTypeError is returned when a tag input is neither a name nor a tag.
type UnsupportedTagTypeError struct {
	Value any
}

func (e *UnsupportedTagTypeError) Error() string {
	return fmt.Sprintf("cannot add %v (%T): expected a tag or a string", e.Value, e.Value)
}

func NewUsage(op string, err error) error {
	return &Error{Kind: Usage, Op: op, Err: err}
}

func NewValidation(op string, err error) error {
	return &Error{Kind: Validation, Op: op, Err: err}
}

func NewUniqueness(op string, err error) error {
	return &Error{Kind: Uniqueness, Op: op, Err: err}
}

// NewStorage wraps err as a storage failure. Errors that already carry a kind
// are returned unchanged so validation and usage errors keep their meaning.
func NewStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	var ut *UnsupportedTagTypeError
	if errors.As(err, &ut) {
		return err
	}
	return &Error{Kind: Storage, Op: op, Err: err}
}

// KindOf reports the kind carried by err, or zero when err has none.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	var ut *UnsupportedTagTypeError
	if errors.As(err, &ut) {
		return Usage
	}
	return 0
}

func IsUsage(err error) bool      { return KindOf(err) == Usage }
func IsValidation(err error) bool { return KindOf(err) == Validation }
func IsStorage(err error) bool    { return KindOf(err) == Storage }
