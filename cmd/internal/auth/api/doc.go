// Package authapi is the HTTP boundary of the auth server.
//
// It translates magic link, session and identity results into status codes,
// upper-case error codes and HTTP-only cookies. Access tokens are read from the
// accessToken cookie or an Authorization: Bearer header; refresh tokens only
// from the refreshToken cookie.
package authapi
