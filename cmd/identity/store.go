package identity

import (
	"context"
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/identity/ids"
)

// User is the canonical security principal.
type User struct {
	ID       string
	Username string
	Email    string

	CreatedAt time.Time
}

// Store is the user directory persistence boundary.
type Store interface {
	// EnsureUser returns the user owning email, creating it when missing.
	// created reports whether this call inserted the row.
	// Two concurrent calls for the same address resolve to the same user.
	EnsureUser(ctx context.Context, email string, now time.Time) (u User, created bool, err error)

	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// newUser validates email and builds a fresh record with a ULID id.
func newUser(op, email string, now time.Time) (User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || !ValidEmail(email) {
		return User{}, "", invalid(op, "valid email is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, "", err
	}
	return User{
		ID:        id,
		Username:  UsernameFromEmail(email),
		Email:     email,
		CreatedAt: now.UTC(),
	}, NormalizeEmail(email), nil
}
