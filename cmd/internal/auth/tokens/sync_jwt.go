package tokens

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type syncJWTClaims struct {
	Resources []string `json:"resources"`
	jwt.RegisteredClaims
}

type syncSigner struct {
	issuer    string
	clockSkew time.Duration
	secret    []byte
}

func newSyncSigner(cfg Config) syncSigner {
	return syncSigner{
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		secret:    []byte(cfg.SyncSecret),
	}
}

func (s syncSigner) sign(c Claims) (string, error) {
	if !validClaims(c) {
		return "", errors.New("tokens: claims need a subject and an expiry")
	}

	res := c.Resources
	if res == nil {
		res = []string{}
	}
	claims := syncJWTClaims{
		Resources: res,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   c.Subject,
			Audience:  jwt.ClaimStrings{AudienceSync},
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			NotBefore: jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s syncSigner) verify(raw string, now time.Time) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}

	var claims syncJWTClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Time claims are validated against the caller's now below.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	if claims.Issuer != s.issuer || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if !slices.Contains(claims.Audience, AudienceSync) {
		return Claims{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return Claims{}, ErrInvalidToken
	}

	var nbf *time.Time
	if claims.NotBefore != nil {
		nbf = &claims.NotBefore.Time
	}
	if !timesValid(now, s.clockSkew, claims.ExpiresAt.Time, &claims.IssuedAt.Time, nbf) {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		Subject:   claims.Subject,
		Resources: claims.Resources,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	}, nil
}
