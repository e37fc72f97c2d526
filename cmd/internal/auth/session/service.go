package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/internal/auth/credstore"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/tokens"
)

// Service issues, refreshes and revokes sessions.
type Service struct {
	cfg     Config
	store   credstore.Store
	tokens  *tokens.Issuer
	resolve ResourceResolver
	log     *slog.Logger
}

// Issued is the result of a login or a refresh.
type Issued struct {
	UserID    string
	Resources []string

	AccessToken string
	SyncToken   string
	AccessExp   time.Time

	RefreshToken string
	RefreshExp   time.Time
	FamilyID     string
}

// Option configures a Service.
type Option func(*Service)

// WithResourceResolver overrides UserStores.
func WithResourceResolver(r ResourceResolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolve = r
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService constructs a Service. The store must be configured with cfg.StoreOptions().
func NewService(cfg Config, store credstore.Store, issuer *tokens.Issuer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	if issuer == nil {
		return nil, errors.New("session: nil token issuer")
	}
	s := &Service{
		cfg:     cfg,
		store:   store,
		tokens:  issuer,
		resolve: UserStores,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Tokens exposes the issuer for access-token verification at the transport boundary.
func (s *Service) Tokens() *tokens.Issuer { return s.tokens }

// GenerateTokens starts a new session for userID. A nil resources list is resolved
// through the ResourceResolver.
func (s *Service) GenerateTokens(ctx context.Context, userID string, resources []string, now time.Time) (Issued, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Issued{}, errors.New("session: missing user id")
	}

	if resources == nil {
		var err error
		if resources, err = s.resolve.Resources(ctx, userID); err != nil {
			return Issued{}, fmt.Errorf("session: resolve resources: %w", err)
		}
	}

	refresh, err := s.store.CreateRefreshToken(ctx, userID, now)
	if err != nil {
		return Issued{}, err
	}

	return s.mint(userID, resources, refresh, now)
}

// RefreshTokens rotates refreshToken and mints a new token set.
//
// The presented token must exist, be unrevoked and unexpired. Rotation is atomic:
// when callers race with the same token, one wins and the others get
// ErrTokenRevoked (or ErrTokenNotFound).
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string, now time.Time) (Issued, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Issued{}, ErrTokenNotFound
	}

	cur, err := s.store.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return Issued{}, err
	}
	if cur.Revoked() {
		if cur.Rotated && s.cfg.RevokeLineageOnReuse {
			s.revokeLineage(ctx, cur, now)
		}
		return Issued{}, ErrTokenRevoked
	}
	if cur.Expired(now) {
		return Issued{}, ErrTokenExpired
	}

	next, err := s.store.RotateRefreshToken(ctx, refreshToken, cur.UserID, now)
	if err != nil {
		return Issued{}, err
	}

	// From here the old token is gone; failures leave the user to log in again.
	resources, err := s.resolve.Resources(ctx, cur.UserID)
	if err != nil {
		s.log.ErrorContext(ctx, "auth.refresh.resolve.fail", "user_id", cur.UserID, "err", err)
		return Issued{}, fmt.Errorf("session: resolve resources: %w", err)
	}
	return s.mint(cur.UserID, resources, next, now)
}

func (s *Service) revokeLineage(ctx context.Context, cur credstore.RefreshToken, now time.Time) {
	n, err := s.store.RevokeRefreshTokenFamily(ctx, cur.FamilyID, now)
	if err != nil {
		s.log.ErrorContext(ctx, "auth.refresh.reuse.revoke.fail", "user_id", cur.UserID, "err", err)
		return
	}
	s.log.WarnContext(ctx, "auth.refresh.reuse",
		"user_id", cur.UserID,
		"family_id", cur.FamilyID,
		"revoked", n,
	)
}

// Logout revokes refreshToken. Unknown, empty and already revoked tokens succeed.
func (s *Service) Logout(ctx context.Context, refreshToken string, now time.Time) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return s.store.RevokeRefreshToken(ctx, refreshToken, now)
}

// RevokeAll revokes every refresh token of userID (logout everywhere).
func (s *Service) RevokeAll(ctx context.Context, userID string, now time.Time) error {
	n, err := s.store.RevokeAllRefreshTokens(ctx, userID, now)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "auth.revoke_all", "user_id", userID, "revoked", n)
	return nil
}

func (s *Service) mint(userID string, resources []string, refresh credstore.RefreshToken, now time.Time) (Issued, error) {
	claims := s.tokens.NewClaims(userID, resources, now)

	access, err := s.tokens.SignAccessToken(claims)
	if err != nil {
		return Issued{}, fmt.Errorf("session: sign access token: %w", err)
	}
	sync, err := s.tokens.SignSyncToken(claims)
	if err != nil {
		return Issued{}, fmt.Errorf("session: sign sync token: %w", err)
	}

	return Issued{
		UserID:       userID,
		Resources:    claims.Resources,
		AccessToken:  access,
		SyncToken:    sync,
		AccessExp:    claims.ExpiresAt,
		RefreshToken: refresh.ID,
		RefreshExp:   refresh.ExpiresAt,
		FamilyID:     refresh.FamilyID,
	}, nil
}
