package credstore

import (
	"context"
	"time"
)

// MagicLink is a one-time, time-boxed login credential. ID is the bearer secret.
type MagicLink struct {
	ID        string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Used reports whether the link has been consumed.
func (m MagicLink) Used() bool { return m.UsedAt != nil }

// Expired reports whether the link is past its expiry at now.
// The expiry instant itself is still valid.
func (m MagicLink) Expired(now time.Time) bool { return now.After(m.ExpiresAt) }

// RefreshToken is a long-lived opaque credential. ID is the bearer secret.
type RefreshToken struct {
	ID       string
	UserID   string
	FamilyID string // shared by every rotation of one login

	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time

	// Rotated is set when the token was revoked by a rotation rather than a logout.
	Rotated bool
}

// Revoked reports whether the token has been revoked.
func (t RefreshToken) Revoked() bool { return t.RevokedAt != nil }

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// Valid reports whether the token can be presented at now.
func (t RefreshToken) Valid(now time.Time) bool { return !t.Revoked() && !t.Expired(now) }

// Store persists magic links and refresh tokens.
// Every mutating call takes an explicit now; implementations never read the wall clock
// unless now is zero.
type Store interface {
	CreateMagicLink(ctx context.Context, email string, now time.Time) (MagicLink, error)
	GetMagicLink(ctx context.Context, id string) (MagicLink, error)

	// MarkMagicLinkUsed sets used_at if unset. consumed reports whether this call
	// performed the transition; a link can be consumed at most once.
	MarkMagicLinkUsed(ctx context.Context, id string, now time.Time) (consumed bool, err error)

	// CreateRefreshToken starts a new lineage for userID.
	CreateRefreshToken(ctx context.Context, userID string, now time.Time) (RefreshToken, error)
	GetRefreshToken(ctx context.Context, id string) (RefreshToken, error)

	// RevokeRefreshToken sets revoked_at if unset. Missing tokens are not an error.
	RevokeRefreshToken(ctx context.Context, id string, now time.Time) error

	// RevokeAllRefreshTokens revokes every active token of userID and returns how many.
	RevokeAllRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error)

	// RevokeRefreshTokenFamily revokes every active token of a lineage and returns how many.
	RevokeRefreshTokenFamily(ctx context.Context, familyID string, now time.Time) (int64, error)

	// RotateRefreshToken atomically revokes oldID and issues its successor in the same lineage.
	// It fails with ErrTokenNotFound, ErrTokenRevoked or ErrTokenExpired when oldID
	// is not valid for userID at now, including when a concurrent rotation won.
	RotateRefreshToken(ctx context.Context, oldID, userID string, now time.Time) (RefreshToken, error)

	Close() error
}
