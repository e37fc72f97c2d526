package tokens

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSyncSecretBytes is the smallest accepted HS256 secret.
const MinSyncSecretBytes = 32

// Config holds the signing parameters of access and sync tokens.
type Config struct {
	// Issuer is set as "iss" on both token kinds and required on verify.
	Issuer string `env:"CHAT_AUTH_ISSUER" envDefault:"livestore-chat"`

	// AccessTTL is the lifetime of access and sync tokens.
	AccessTTL time.Duration `env:"CHAT_AUTH_ACCESS_TTL" envDefault:"15m"`

	// ClockSkew relaxes iat/nbf checks only. Expiry is always exact.
	ClockSkew time.Duration `env:"CHAT_AUTH_CLOCK_SKEW" envDefault:"30s"`

	// AccessSecretKeyHex is the hex-encoded Ed25519 secret key for PASETO v4.public.
	AccessSecretKeyHex string `env:"CHAT_PASETO_V4_SECRET_KEY_HEX"`

	// SyncSecret is the HS256 key for sync tokens (>= 32 bytes).
	SyncSecret string `env:"CHAT_SYNC_TOKEN_SECRET"`
}

// DefaultConfig returns defaults without keys.
func DefaultConfig() Config {
	return Config{
		Issuer:    "livestore-chat",
		AccessTTL: 15 * time.Minute,
		ClockSkew: 30 * time.Second,
	}
}

// LoadConfigFromEnv loads token configuration from the environment.
//
// Required:
//   - CHAT_PASETO_V4_SECRET_KEY_HEX
//   - CHAT_SYNC_TOKEN_SECRET
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that do not require parsing the keys.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: issuer is empty", ErrConfig)
	case c.AccessTTL <= 0:
		return fmt.Errorf("%w: access ttl must be positive", ErrConfig)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	case strings.TrimSpace(c.AccessSecretKeyHex) == "":
		return fmt.Errorf("%w: CHAT_PASETO_V4_SECRET_KEY_HEX is missing", ErrConfig)
	case len(c.SyncSecret) < MinSyncSecretBytes:
		return fmt.Errorf("%w: CHAT_SYNC_TOKEN_SECRET must be at least %d bytes", ErrConfig, MinSyncSecretBytes)
	}
	return nil
}
