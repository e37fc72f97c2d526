// Package session implements the session lifecycle on top of credstore and tokens.
//
// A login yields an access token, a sync token and a refresh token. Refreshing
// rotates the refresh token atomically; at most one caller wins per token value.
// Logout revokes one refresh token, RevokeAll every token of a user.
//
// Transport (cookies, status codes) is handled by the auth API.
package session
