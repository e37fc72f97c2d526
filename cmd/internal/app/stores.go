package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ldirer/livestore-chat/cmd/identity"
	"github.com/ldirer/livestore-chat/cmd/internal/auth/credstore"
	"github.com/ldirer/livestore-chat/cmd/internal/storage"
)

// Backend kinds reported in logs and readiness.
const (
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"
	backendMemory   = "memory"
)

// backends groups the persistence of one process. The app owns the underlying
// pool or database handle; store Close methods do not release it.
type backends struct {
	kind  string
	creds credstore.Store
	users identity.Store

	pool *pgxpool.Pool
	db   *sql.DB
}

// openBackends picks Postgres, then SQLite, then memory, and applies migrations.
func openBackends(ctx context.Context, cfg Config, log Logger, opts ...credstore.Option) (*backends, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("app: postgres: %w", err)
		}
		n, err := storage.MigratePostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		creds, err := credstore.NewPostgresStore(pool, opts...)
		if err != nil {
			pool.Close()
			return nil, err
		}
		users, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled", "backend", backendPostgres, "migrations_applied", n)
		return &backends{kind: backendPostgres, creds: creds, users: users, pool: pool}, nil

	case cfg.DatabasePath != "":
		db, err := storage.OpenSQLite(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		creds, err := credstore.NewSQLiteStore(db, opts...)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		users, err := identity.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("db.enabled", "backend", backendSQLite, "path", cfg.DatabasePath)
		return &backends{kind: backendSQLite, creds: creds, users: users, db: db}, nil

	default:
		log.Warn("db.disabled", "backend", backendMemory)
		return &backends{
			kind:  backendMemory,
			creds: credstore.NewMemoryStore(opts...),
			users: identity.NewMemoryStore(),
		}, nil
	}
}

func (b *backends) durable() bool { return b.kind != backendMemory }

// ping checks the database within timeout. Memory backends are always ready.
func (b *backends) ping(ctx context.Context, timeout time.Duration) error {
	switch {
	case b.pool != nil:
		return PingDB(ctx, b.pool, timeout)
	case b.db != nil:
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return b.db.PingContext(pctx)
	default:
		return nil
	}
}

func (b *backends) Close() error {
	if b.creds != nil {
		_ = b.creds.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
