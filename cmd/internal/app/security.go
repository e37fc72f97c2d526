package app

import (
	"errors"
	"fmt"

	"github.com/ldirer/livestore-chat/cmd/security/token"
)

// ValidateSecurityConfig enforces the token hashing policy at startup and returns
// the hasher every credential store must share.
//
// Fail-fast: with CHAT_REQUIRE_TOKEN_HMAC=true there is no SHA-256 fallback.
func ValidateSecurityConfig(cfg Config) (token.Hasher, error) {
	build := token.NewHasher
	if cfg.RequireTokenHMAC {
		build = token.RequireHMAC
	}

	h, err := build(cfg.TokenHMACKey)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: CHAT_REQUIRE_TOKEN_HMAC=true but CHAT_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("security policy: CHAT_TOKEN_HMAC_KEY is too short (min %d bytes)", token.MinHMACKeyBytes)
	default:
		return token.Hasher{}, err
	}

	// Guards against a future hasher change silently dropping the key under policy.
	if cfg.RequireTokenHMAC && !h.HMACEnabled() {
		return token.Hasher{}, errors.New("security policy: CHAT_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return h, nil
}
