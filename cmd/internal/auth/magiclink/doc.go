// Package magiclink issues and validates one-time login links.
//
// A link is a deep link into the front end carrying an opaque token. Validation
// consumes the token, so a link can log a user in at most once. Delivery is
// delegated to a Sender.
package magiclink
