package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const claimResources = "res"

type accessSigner struct {
	issuer    string
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

func newAccessSigner(cfg Config) (accessSigner, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(strings.TrimSpace(cfg.AccessSecretKeyHex))
	if err != nil {
		return accessSigner{}, fmt.Errorf("%w: paseto v4 secret key: %v", ErrConfig, err)
	}
	return accessSigner{
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

func (s accessSigner) sign(c Claims) (string, error) {
	if !validClaims(c) {
		return "", errors.New("tokens: claims need a subject and an expiry")
	}

	tok := paseto.NewToken()
	tok.SetIssuer(s.issuer)
	tok.SetAudience(AudienceAccess)
	tok.SetSubject(c.Subject)
	tok.SetIssuedAt(c.IssuedAt)
	tok.SetNotBefore(c.IssuedAt)
	tok.SetExpiration(c.ExpiresAt)

	res := c.Resources
	if res == nil {
		res = []string{}
	}
	if err := tok.Set(claimResources, res); err != nil {
		return "", err
	}

	return tok.V4Sign(s.secret, nil), nil
}

func (s accessSigner) verify(raw string, now time.Time) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}

	// Expiry is checked against the caller's now below; the built-in rule would use the wall clock.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(s.issuer))
	p.AddRule(paseto.ForAudience(AudienceAccess))

	parsed, err := p.ParseV4Public(s.public, raw, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrInvalidToken
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	iat, err := parsed.GetIssuedAt()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var nbf *time.Time
	if v, err := parsed.GetNotBefore(); err == nil {
		nbf = &v
	}

	var res []string
	if err := parsed.Get(claimResources, &res); err != nil {
		return Claims{}, ErrInvalidToken
	}

	if !timesValid(now, s.clockSkew, exp, &iat, nbf) {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		Subject:   sub,
		Resources: res,
		IssuedAt:  iat.UTC(),
		ExpiresAt: exp.UTC(),
	}, nil
}

// timesValid applies skew to iat/nbf only; a token is expired from exp onwards.
func timesValid(now time.Time, skew time.Duration, exp time.Time, iat, nbf *time.Time) bool {
	if !now.Before(exp) {
		return false
	}
	latest := now.Add(skew)
	if iat != nil && latest.Before(*iat) {
		return false
	}
	if nbf != nil && latest.Before(*nbf) {
		return false
	}
	return true
}
