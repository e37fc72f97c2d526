// Package token provides opaque credential generation and at-rest hashing.
//
// It is the single source of truth for how magic-link and refresh-token
// secrets are turned into storable digests.
//
// Modes:
//   - SHA-256(token) when no key is configured (dev).
//   - HMAC-SHA256(token, key) when a key is configured.
//
// Output is always a 64-char hex string so stores can index it and compare it
// in constant time.
package token
