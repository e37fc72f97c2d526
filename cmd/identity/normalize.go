package identity

import (
	"net/mail"
	"strings"
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s is a single bare address (no display name).
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 320 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && addr.Name == ""
}

// UsernameFromEmail derives the default username: the local part of the address.
func UsernameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.LastIndex(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
