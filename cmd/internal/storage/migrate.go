package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect names a supported SQL dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) goose() (goose.Dialect, string, error) {
	switch d {
	case DialectPostgres:
		return goose.DialectPostgres, "migrations/postgres", nil
	case DialectSQLite:
		return goose.DialectSQLite3, "migrations/sqlite", nil
	default:
		return "", "", fmt.Errorf("storage: unsupported dialect %q", string(d))
	}
}

// Migrate applies every pending embedded migration for dialect.
// It returns the number of migrations applied.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("storage: nil db")
	}

	gd, dir, err := dialect.goose()
	if err != nil {
		return 0, err
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return 0, fmt.Errorf("storage: migrations fs: %w", err)
	}

	p, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("storage: goose provider: %w", err)
	}

	res, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("storage: migrate %s: %w", dialect, err)
	}
	return len(res), nil
}

// MigratePostgres runs the Postgres migrations over a database/sql view of pool.
// The pool stays owned by the caller.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	if pool == nil {
		return 0, fmt.Errorf("storage: nil pool")
	}
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	return Migrate(ctx, db, DialectPostgres)
}
