package syncauth

import (
	"errors"

	"github.com/ldirer/livestore-chat/cmd/internal/auth/tokens"
)

var (
	// ErrMissingToken is returned when no sync token was presented.
	ErrMissingToken = errors.New("sync: missing auth token")

	// ErrMissingStore is returned when no store id was requested.
	ErrMissingStore = errors.New("sync: missing store id")

	// ErrInvalidToken is returned when the sync token does not verify.
	ErrInvalidToken = tokens.ErrInvalidToken

	// ErrStoreForbidden is returned when the store id is not among the token resources.
	ErrStoreForbidden = errors.New("sync: store not allowed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Stable codes returned by Code, also used as metric outcomes.
const (
	CodeOK             = "ok"
	CodeTokenMissing   = "auth_token_missing"
	CodeStoreMissing   = "store_id_missing"
	CodeTokenInvalid   = "auth_token_invalid"
	CodeStoreForbidden = "store_forbidden"
)

// Code maps an authorization error to its stable code.
func Code(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrMissingToken):
		return CodeTokenMissing
	case errors.Is(err, ErrMissingStore):
		return CodeStoreMissing
	case errors.Is(err, ErrStoreForbidden):
		return CodeStoreForbidden
	default:
		return CodeTokenInvalid
	}
}
