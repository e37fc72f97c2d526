package syncauth

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls the sync channel endpoints.
type Config struct {
	// OriginRequired rejects WebSocket upgrades without an Origin header.
	OriginRequired bool     `env:"CHAT_SYNC_ORIGIN_REQUIRED" envDefault:"true"`
	AllowedOrigins []string `env:"CHAT_SYNC_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost,http://127.0.0.1"`

	// DevInsecure disables the websocket library's own origin verification. Dev only.
	DevInsecure bool `env:"CHAT_SYNC_DEV_INSECURE" envDefault:"false"`

	AuthTimeout       time.Duration `env:"CHAT_SYNC_AUTH_TIMEOUT" envDefault:"10s"`
	ReadIdleTimeout   time.Duration `env:"CHAT_SYNC_READ_IDLE_TIMEOUT" envDefault:"2m"`
	WriteTimeout      time.Duration `env:"CHAT_SYNC_WRITE_TIMEOUT" envDefault:"5s"`
	HeartbeatInterval time.Duration `env:"CHAT_SYNC_HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"CHAT_SYNC_HEARTBEAT_TIMEOUT" envDefault:"5s"`

	// Per-connection message budget.
	RateEvents int           `env:"CHAT_SYNC_RATE_EVENTS" envDefault:"120"`
	RateWindow time.Duration `env:"CHAT_SYNC_RATE_WINDOW" envDefault:"10s"`

	MaxFrameBytes int64 `env:"CHAT_SYNC_MAX_FRAME_BYTES" envDefault:"65536"`
}

// DefaultConfig returns the defaults used when no environment is set.
func DefaultConfig() Config {
	return Config{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		AuthTimeout:       10 * time.Second,
		ReadIdleTimeout:   2 * time.Minute,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		RateEvents:        120,
		RateWindow:        10 * time.Second,
		MaxFrameBytes:     64 << 10,
	}
}

// LoadConfigFromEnv loads sync config from CHAT_SYNC_* variables.
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

// Validate rejects non-positive limits and timeouts.
func (c Config) Validate() error {
	durations := map[string]time.Duration{
		"auth timeout":       c.AuthTimeout,
		"read idle timeout":  c.ReadIdleTimeout,
		"write timeout":      c.WriteTimeout,
		"heartbeat interval": c.HeartbeatInterval,
		"heartbeat timeout":  c.HeartbeatTimeout,
		"rate window":        c.RateWindow,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrConfig, name)
		}
	}
	if c.RateEvents <= 0 {
		return fmt.Errorf("%w: rate events must be positive", ErrConfig)
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("%w: max frame bytes must be positive", ErrConfig)
	}
	return nil
}
