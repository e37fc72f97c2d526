package tokens

import "errors"

var (
	// ErrInvalidToken is returned for every verification failure. Callers must not
	// distinguish bad signatures from expired or malformed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
