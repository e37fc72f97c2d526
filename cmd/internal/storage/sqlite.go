package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteDSNParams keeps the file in WAL mode, enforces foreign keys, waits on
// lock contention and starts every transaction with BEGIN IMMEDIATE so that
// conditional updates inside a transaction never race a concurrent writer.
const sqliteDSNParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// OpenSQLite opens (or creates) the SQLite database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage: sqlite path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?" + sqliteDSNParams
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}

	// A single writer connection; readers queue behind it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}

	if _, err := Migrate(ctx, db, DialectSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ToMillis normalizes t into unix milliseconds for SQLite columns.
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis restores a UTC time from unix milliseconds.
func FromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// FromNullMillis restores a nullable timestamp column.
func FromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := FromMillis(v.Int64)
	return &t
}
