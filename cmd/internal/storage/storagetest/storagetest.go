// Package storagetest opens migrated throwaway databases for package tests.
//
// Postgres databases are opt-in and require CHAT_DATABASE_URL. In non-CI runs,
// an unreachable Postgres skips the calling test to keep local runs fast.
package storagetest

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/ldirer/livestore-chat/cmd/internal/storage"
)

// DatabaseURLEnv is the env var that enables Postgres-backed tests.
const DatabaseURLEnv = "CHAT_DATABASE_URL"

// SQLite returns a migrated SQLite database in a per-test temp dir.
func SQLite(t *testing.T) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Postgres returns a pool bound to a fresh, migrated schema.
// The schema is dropped when the test ends.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(DatabaseURLEnv))
	if raw == "" {
		t.Skipf("integration test skipped: %s is not set", DatabaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pingPool(ctx, admin); err != nil {
		admin.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable (%s set): %v", DatabaseURLEnv, err)
		}
		t.Fatalf("acquire: %v", err)
	}

	schema := "chat_it_" + strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
	if _, err := admin.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		admin.Close()
		t.Fatalf("parse %s: %v", DatabaseURLEnv, err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		admin.Close()
		t.Fatalf("connect postgres (schema): %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = admin.Exec(dropCtx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		admin.Close()
	})

	if _, err := storage.MigratePostgres(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func pingPool(parent context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(parent, 3*time.Second)
	defer cancel()

	c, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	c.Release()
	return nil
}

func shouldSkip(err error) bool {
	if err == nil || os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
