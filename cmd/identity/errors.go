package identity

import (
	"errors"
	"fmt"
)

// Error kinds, stable for errors.Is. The auth API maps them to status codes.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
)

// OpError pairs a store operation with one of the kinds above.
// Msg is for humans and never contains an email address or id.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return e.Op + ": " + e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError is returned when a unique column (email, username) is already taken
// by a row that could not be reused.
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s: %v on %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a lookup that matched no user. By names the lookup key
// ("id" or "email").
type NotFoundError struct {
	Op string
	By string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: no user with that %s", e.Op, e.By)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

func notFound(op, by string) error {
	return NotFoundError{Op: op, By: by}
}
