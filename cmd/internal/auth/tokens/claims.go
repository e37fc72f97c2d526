package tokens

import "time"

const (
	// AudienceAccess is the audience of tokens accepted by the HTTP API.
	AudienceAccess = "api"
	// AudienceSync is the audience of tokens accepted by the sync channel.
	AudienceSync = "sync"
)

// Claims is the identity envelope carried by access and sync tokens.
type Claims struct {
	Subject   string
	Resources []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Allows reports whether resource is listed in the claims.
func (c Claims) Allows(resource string) bool {
	if resource == "" {
		return false
	}
	for _, r := range c.Resources {
		if r == resource {
			return true
		}
	}
	return false
}

// Issuer mints and verifies access and sync tokens. It is safe for concurrent use;
// keys are parsed once and never mutated.
type Issuer struct {
	cfg    Config
	access accessSigner
	sync   syncSigner
}

// NewIssuer parses the configured keys.
func NewIssuer(cfg Config) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	access, err := newAccessSigner(cfg)
	if err != nil {
		return nil, err
	}
	return &Issuer{cfg: cfg, access: access, sync: newSyncSigner(cfg)}, nil
}

// TTL is the lifetime given to new claims.
func (i *Issuer) TTL() time.Duration { return i.cfg.AccessTTL }

// NewClaims builds claims valid from now for the configured TTL.
func (i *Issuer) NewClaims(subject string, resources []string, now time.Time) Claims {
	now = now.UTC().Truncate(time.Second)
	res := make([]string, len(resources))
	copy(res, resources)
	return Claims{
		Subject:   subject,
		Resources: res,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.cfg.AccessTTL),
	}
}

// SignAccessToken signs c as a PASETO v4.public token.
func (i *Issuer) SignAccessToken(c Claims) (string, error) { return i.access.sign(c) }

// VerifyAccessToken returns the claims of a valid access token at now.
func (i *Issuer) VerifyAccessToken(tok string, now time.Time) (Claims, error) {
	return i.access.verify(tok, now)
}

// SignSyncToken signs c as an HS256 JWT.
func (i *Issuer) SignSyncToken(c Claims) (string, error) { return i.sync.sign(c) }

// VerifySyncToken returns the claims of a valid sync token at now.
func (i *Issuer) VerifySyncToken(tok string, now time.Time) (Claims, error) {
	return i.sync.verify(tok, now)
}

func validClaims(c Claims) bool {
	return c.Subject != "" && !c.ExpiresAt.IsZero()
}
