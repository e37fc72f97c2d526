package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	authapi "github.com/ldirer/livestore-chat/cmd/internal/auth/api"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/magiclink"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/session"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/tokens"
	"github.com/ldirer/livestore-chat/cmd/internal/syncauth"
)

// ErrConfig is returned for invalid runtime configuration.
var ErrConfig = errors.New("invalid config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"CHAT_HTTP_ADDR" envDefault:"0.0.0.0:9003"`
	LogLevel  string `env:"CHAT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CHAT_LOG_FORMAT" envDefault:"json"`
	LogColor  bool   `env:"CHAT_LOG_COLOR" envDefault:"true"`

	ReadHeaderTimeout time.Duration `env:"CHAT_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"CHAT_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"CHAT_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"CHAT_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"CHAT_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"CHAT_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// Storage selection: DatabaseURL (Postgres) wins over DatabasePath (SQLite);
	// with neither set everything lives in memory.
	DatabaseURL  string `env:"CHAT_DATABASE_URL"`
	DatabasePath string `env:"CHAT_DATABASE_PATH"`
	DBMaxConns   int32  `env:"CHAT_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns   int32  `env:"CHAT_DB_MIN_CONNS" envDefault:"0"`

	// If true, /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool `env:"CHAT_READINESS_REQUIRE_DB" envDefault:"false"`

	// TokenHMACKey keys the at-rest digests of magic links and refresh tokens.
	// RequireTokenHMAC refuses to start without it.
	TokenHMACKey     string `env:"CHAT_TOKEN_HMAC_KEY"`
	RequireTokenHMAC bool   `env:"CHAT_REQUIRE_TOKEN_HMAC" envDefault:"false"`

	// Component configs, loaded and validated by their own packages.
	Tokens    tokens.Config
	Session   session.Config
	MagicLink magiclink.Config
	AuthAPI   authapi.Config
	Sync      syncauth.Config
}

// LoadConfig loads Config and every component config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	var err error
	if cfg.Tokens, err = tokens.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Session, err = session.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.MagicLink, err = magiclink.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.AuthAPI, err = authapi.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Sync, err = syncauth.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http addr is required", ErrConfig)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "pretty":
	default:
		return fmt.Errorf("%w: log format must be json or pretty, got %q", ErrConfig, c.LogFormat)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("%w: invalid db pool bounds min=%d max=%d", ErrConfig, c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
