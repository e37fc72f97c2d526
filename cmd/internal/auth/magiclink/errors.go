package magiclink

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmailCouldNotBeSent is returned when the Sender fails. The link stays valid.
	ErrEmailCouldNotBeSent = errors.New("email could not be sent")

	// ErrRateLimited is returned when too many links were requested for one address.
	ErrRateLimited = errors.New("magic link rate limited")

	// ErrInvalidEmail is returned for an empty address.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// RateLimitError carries retry metadata for login link throttling.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
}

func (e RateLimitError) Unwrap() error { return ErrRateLimited }
