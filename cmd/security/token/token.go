package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// Key errors returned by NewHasher and RequireHMAC.
var (
	ErrHMACKeyMissing  = errors.New("token: hmac key missing")
	ErrHMACKeyTooShort = errors.New("token: hmac key too short")
)

const (
	// DefaultBytes is the entropy of a freshly minted opaque token.
	DefaultBytes = 32

	// MinHMACKeyBytes is the minimum accepted HMAC key size.
	MinHMACKeyBytes = 32
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// NewOpaque returns a cryptographically random, URL-safe token (base64url, no padding).
func NewOpaque(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = DefaultBytes
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hasher turns plaintext tokens into storable digests.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher in HMAC mode when key is non-empty.
// A non-empty key shorter than MinHMACKeyBytes is rejected.
func NewHasher(key string) (Hasher, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Hasher{}, nil
	}
	if len(key) < MinHMACKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return Hasher{key: []byte(key)}, nil
}

// RequireHMAC is NewHasher with the additional rule that a key must be present.
func RequireHMAC(key string) (Hasher, error) {
	if strings.TrimSpace(key) == "" {
		return Hasher{}, ErrHMACKeyMissing
	}
	return NewHasher(key)
}

// HMACEnabled reports whether h hashes with a key.
func (h Hasher) HMACEnabled() bool { return len(h.key) > 0 }

// Hash returns the 64-char hex digest for tok.
func (h Hasher) Hash(tok string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}

// EqualHex compares two 64-char hex digests in constant time.
// It rejects other lengths so timing does not depend on input size.
func EqualHex(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
