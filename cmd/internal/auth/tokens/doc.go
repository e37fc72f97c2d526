// Package tokens mints and verifies the two signed, short-lived credentials of a session.
//
// Access tokens are PASETO v4.public (Ed25519) with audience "api". Sync tokens are
// HS256 JWTs with audience "sync", consumed by the realtime sync channel. The two use
// independent keys so neither can be presented in place of the other.
//
// Neither token is persisted; refresh tokens live in credstore.
package tokens
