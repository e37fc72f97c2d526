package credstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a magic link does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for empty or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTokenNotFound is returned when a refresh token does not exist (or belongs to another user).
	ErrTokenNotFound = errors.New("token_not_found")

	// ErrTokenRevoked is returned when a refresh token has been revoked or already rotated.
	ErrTokenRevoked = errors.New("token_revoked")

	// ErrTokenExpired is returned when a refresh token is past its expiry.
	ErrTokenExpired = errors.New("token_expired")

	// ErrStorageUnavailable wraps every I/O failure of the underlying database.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// OpError carries the failing operation, a sentinel Kind and the cause.
// errors.Is matches both Kind and Err.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(op string, err error) error {
	return &OpError{Op: op, Kind: ErrStorageUnavailable, Err: err}
}

func invalid(op, msg string) error {
	return &OpError{Op: op, Kind: ErrInvalidInput, Err: errors.New(msg)}
}
