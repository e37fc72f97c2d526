package authapi

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid config")

// Config controls transport-level auth behavior.
type Config struct {
	// TrustProxy reads the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool  `env:"CHAT_AUTH_TRUST_PROXY" envDefault:"false"`
	MaxBodyBytes int64 `env:"CHAT_AUTH_MAX_BODY_BYTES" envDefault:"1048576"`

	// CookieSecure should only be disabled for plain-http local testing.
	CookieSecure bool   `env:"CHAT_AUTH_COOKIE_SECURE" envDefault:"true"`
	CookieDomain string `env:"CHAT_AUTH_COOKIE_DOMAIN"`
	CookiePath   string `env:"CHAT_AUTH_COOKIE_PATH" envDefault:"/"`
}

// DefaultConfig returns production-safe defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 1 << 20,
		CookieSecure: true,
		CookiePath:   "/",
	}
}

// LoadConfigFromEnv loads auth API config from CHAT_AUTH_* variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("%w: max body bytes must be positive", ErrConfig)
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	return cfg, nil
}
