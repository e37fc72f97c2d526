package syncauth

import (
	"errors"
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/internal/auth/tokens"
	"github.com/ldirer/livestore-chat/cmd/internal/telemetry"
)

// Verifier verifies sync tokens. *tokens.Issuer implements it.
type Verifier interface {
	VerifySyncToken(token string, now time.Time) (tokens.Claims, error)
}

// Authorizer decides whether a sync token may open a given store.
type Authorizer struct {
	verifier Verifier
	metrics  *telemetry.Metrics
}

// NewAuthorizer constructs an Authorizer. metrics may be nil.
func NewAuthorizer(v Verifier, metrics *telemetry.Metrics) (*Authorizer, error) {
	if v == nil {
		return nil, errors.New("sync: nil verifier")
	}
	return &Authorizer{verifier: v, metrics: metrics}, nil
}

// Authorize verifies token and checks storeID against its resources.
// Verification failures of any kind collapse to ErrInvalidToken.
func (a *Authorizer) Authorize(token, storeID string, now time.Time) (tokens.Claims, error) {
	claims, err := a.authorize(token, storeID, now)
	a.metrics.SyncAuthorization(Code(err))
	return claims, err
}

func (a *Authorizer) authorize(token, storeID string, now time.Time) (tokens.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return tokens.Claims{}, ErrMissingToken
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return tokens.Claims{}, ErrMissingStore
	}

	claims, err := a.verifier.VerifySyncToken(token, now)
	if err != nil {
		return tokens.Claims{}, ErrInvalidToken
	}
	if !claims.Allows(storeID) {
		return tokens.Claims{}, ErrStoreForbidden
	}
	return claims, nil
}
