package magiclink

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls link construction, lifetime and throttling.
type Config struct {
	// BaseURL is the front-end origin; links point at <BaseURL>/login?token=<id>.
	BaseURL string `env:"CHAT_FRONTEND_URL" envDefault:"http://localhost:60001"`

	// TTL is the lifetime of a link. It is applied by the credential store.
	TTL time.Duration `env:"CHAT_MAGIC_LINK_TTL" envDefault:"15m"`

	// RateLimitMax is the number of links per address per window. 0 disables throttling.
	RateLimitMax    int           `env:"CHAT_MAGIC_LINK_RATE_MAX" envDefault:"0"`
	RateLimitWindow time.Duration `env:"CHAT_MAGIC_LINK_RATE_WINDOW" envDefault:"15m"`
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:60001",
		TTL:             15 * time.Minute,
		RateLimitWindow: 15 * time.Minute,
	}
}

// LoadConfigFromEnv reads Config from CHAT_* variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: CHAT_FRONTEND_URL must be an absolute http(s) URL", ErrConfig)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: magic link ttl must be positive", ErrConfig)
	}
	if c.RateLimitMax < 0 {
		return fmt.Errorf("%w: rate limit max must not be negative", ErrConfig)
	}
	if c.RateLimitMax > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("%w: rate limit window must be positive", ErrConfig)
	}
	return nil
}
