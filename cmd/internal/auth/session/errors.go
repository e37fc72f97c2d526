package session

import (
	"errors"

	"github.com/ldirer/livestore-chat/cmd/internal/auth/credstore"
)

var (
	// ErrTokenNotFound is returned when a refresh token does not match any record.
	ErrTokenNotFound = credstore.ErrTokenNotFound

	// ErrTokenRevoked is returned when a refresh token was revoked or already rotated.
	ErrTokenRevoked = credstore.ErrTokenRevoked

	// ErrTokenExpired is returned when a refresh token is past its expiry.
	ErrTokenExpired = credstore.ErrTokenExpired

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Stable machine-readable codes returned by Code.
const (
	CodeTokenNotFound = "token_not_found"
	CodeTokenRevoked  = "token_revoked"
	CodeTokenExpired  = "token_expired"
	CodeInternal      = "internal_error"
)

// Code maps a session error to its stable code. It returns "" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenNotFound):
		return CodeTokenNotFound
	case errors.Is(err, ErrTokenRevoked):
		return CodeTokenRevoked
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	default:
		return CodeInternal
	}
}
