package session

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ldirer/livestore-chat/cmd/internal/auth/credstore"
)

// Config defines the refresh-token policy.
//
// RefreshTTL and RefreshTokenBytes are applied by the credential store
// (see StoreOptions); the service itself only reads RevokeLineageOnReuse.
type Config struct {
	// RefreshTTL is the lifetime of every refresh token, including rotated successors.
	RefreshTTL time.Duration `env:"CHAT_AUTH_REFRESH_TTL" envDefault:"168h"`

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int `env:"CHAT_AUTH_REFRESH_TOKEN_BYTES" envDefault:"32"`

	// RevokeLineageOnReuse revokes every token of a login when a rotated token is presented again.
	RevokeLineageOnReuse bool `env:"CHAT_AUTH_REVOKE_LINEAGE_ON_REUSE" envDefault:"false"`
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		RefreshTTL:        credstore.DefaultRefreshTTL,
		RefreshTokenBytes: 32,
	}
}

// LoadConfigFromEnv loads the policy from CHAT_AUTH_* variables.
//
// Optional:
//   - CHAT_AUTH_REFRESH_TTL (Go duration, > 0)
//   - CHAT_AUTH_REFRESH_TOKEN_BYTES (32..64)
//   - CHAT_AUTH_REVOKE_LINEAGE_ON_REUSE (bool)
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.RefreshTTL <= 0 {
		return Config{}, fmt.Errorf("%w: refresh ttl must be positive", ErrConfig)
	}
	if cfg.RefreshTokenBytes < 32 || cfg.RefreshTokenBytes > 64 {
		return Config{}, fmt.Errorf("%w: refresh token bytes must be within 32..64", ErrConfig)
	}
	return cfg, nil
}

// StoreOptions returns the credstore options implementing this policy.
func (c Config) StoreOptions() []credstore.Option {
	return []credstore.Option{
		credstore.WithRefreshTTL(c.RefreshTTL),
		credstore.WithTokenBytes(c.RefreshTokenBytes),
	}
}
