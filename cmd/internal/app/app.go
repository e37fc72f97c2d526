// Package app wires the auth server runtime: config, logging, storage, HTTP
// routes and the sync gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	authapi "github.com/ldirer/livestore-chat/cmd/internal/auth/api"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/credstore"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/magiclink"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/session"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/tokens"
	"github.com/ldirer/livestore-chat/cmd/internal/syncauth"
	"github.com/ldirer/livestore-chat/cmd/internal/telemetry"
)

// App is the server runtime. It owns the storage backends and the HTTP handler tree.
type App struct {
	cfg Config
	log Logger

	db      *backends
	metrics *telemetry.Metrics
	handler http.Handler
}

// New constructs a fully wired App from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}

	hasher, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	storeOpts := append(cfg.Session.StoreOptions(),
		credstore.WithMagicLinkTTL(cfg.MagicLink.TTL),
		credstore.WithHasher(hasher),
	)
	db, err := openBackends(ctx, cfg, log, storeOpts...)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("app.ready", "backend", db.kind, "token_hmac", hasher.HMACEnabled())
	return a, nil
}

func wire(cfg Config, log Logger, db *backends) (*App, error) {
	metrics := telemetry.New()

	issuer, err := tokens.NewIssuer(cfg.Tokens)
	if err != nil {
		return nil, err
	}

	links, err := magiclink.NewService(cfg.MagicLink, db.creds,
		magiclink.WithLogger(log.With("component", "magiclink")),
	)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewService(cfg.Session, db.creds, issuer,
		session.WithLogger(log.With("component", "session")),
	)
	if err != nil {
		return nil, err
	}

	auth, err := authapi.NewHandler(log, cfg.AuthAPI, cfg.Session, db.users, links, sessions,
		authapi.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	authorizer, err := syncauth.NewAuthorizer(issuer, metrics)
	if err != nil {
		return nil, err
	}
	sync, err := syncauth.NewGateway(log.With("component", "sync"), cfg.Sync, authorizer)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, db, metrics, auth, sync)

	return &App{
		cfg:     cfg,
		log:     log,
		db:      db,
		metrics: metrics,
		handler: WithRequestID(WithRequestLogging(WithSecurityHeaders(mux), log)),
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
// It closes the storage backends before returning.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.db.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "backend", a.db.kind)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
