package credstore

import (
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/identity/ids"
	"github.com/ldirer/livestore-chat/cmd/security/token"
)

const (
	DefaultMagicLinkTTL = 15 * time.Minute
	DefaultRefreshTTL   = 7 * 24 * time.Hour

	// maxTokenLen bounds lookups to avoid hashing pathological inputs.
	maxTokenLen = 4096
)

// Option configures a Store.
type Option func(*settings)

type settings struct {
	magicLinkTTL time.Duration
	refreshTTL   time.Duration
	tokenBytes   int
	hasher       token.Hasher

	// precision is the timestamp resolution of the backend.
	precision time.Duration
}

// WithMagicLinkTTL overrides the magic-link lifetime (default 15m).
func WithMagicLinkTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.magicLinkTTL = d
		}
	}
}

// WithRefreshTTL overrides the refresh-token lifetime (default 7 days).
func WithRefreshTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.refreshTTL = d
		}
	}
}

// WithTokenBytes overrides the entropy of generated tokens (min 32 bytes).
func WithTokenBytes(n int) Option {
	return func(s *settings) {
		if n >= token.DefaultBytes {
			s.tokenBytes = n
		}
	}
}

// WithHasher sets the at-rest digest function (plain SHA-256 by default).
func WithHasher(h token.Hasher) Option {
	return func(s *settings) { s.hasher = h }
}

func newSettings(precision time.Duration, opts []Option) settings {
	s := settings{
		magicLinkTTL: DefaultMagicLinkTTL,
		refreshTTL:   DefaultRefreshTTL,
		tokenBytes:   token.DefaultBytes,
		precision:    precision,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

func (s settings) clock(now time.Time) time.Time {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	if s.precision > 0 {
		now = now.Truncate(s.precision)
	}
	return now
}

// lookupHash validates a presented bearer value and returns its digest.
func (s settings) lookupHash(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxTokenLen {
		return "", false
	}
	return s.hasher.Hash(id), true
}

func (s settings) mintMagicLink(op, email string, now time.Time) (MagicLink, string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return MagicLink{}, "", invalid(op, "missing email")
	}

	id, err := token.NewOpaque(s.tokenBytes)
	if err != nil {
		return MagicLink{}, "", err
	}

	now = s.clock(now)
	return MagicLink{
		ID:        id,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.magicLinkTTL),
	}, s.hasher.Hash(id), nil
}

// mintRefresh builds a token for userID. An empty familyID starts a new lineage.
func (s settings) mintRefresh(op, userID, familyID string, now time.Time) (RefreshToken, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return RefreshToken{}, "", invalid(op, "missing user id")
	}

	now = s.clock(now)

	if familyID == "" {
		fid, err := ids.NewULID(now)
		if err != nil {
			return RefreshToken{}, "", err
		}
		familyID = fid
	}

	id, err := token.NewOpaque(s.tokenBytes)
	if err != nil {
		return RefreshToken{}, "", err
	}

	return RefreshToken{
		ID:        id,
		UserID:    userID,
		FamilyID:  familyID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}, s.hasher.Hash(id), nil
}

// classify maps the state of a token that failed the rotation guard to its error.
func classify(t RefreshToken, found bool, userID string, now time.Time) error {
	switch {
	case !found || t.UserID != userID:
		return ErrTokenNotFound
	case t.Revoked():
		return ErrTokenRevoked
	case t.Expired(now):
		return ErrTokenExpired
	default:
		// Guard failed but the row looks valid: a concurrent rotation committed in between.
		return ErrTokenRevoked
	}
}
