package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_AppliesMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)

	var n int
	err = db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'magic_links', 'refresh_tokens')`).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, db.Close())

	// Reopening must be a no-op migration-wise.
	db, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	applied, err := Migrate(ctx, db, DialectSQLite)
	require.NoError(t, err)
	require.Zero(t, applied)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	require.Error(t, err)
}

func TestMigrate_UnknownDialect(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = Migrate(context.Background(), db, Dialect("oracle"))
	require.Error(t, err)
}

func TestMillisRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 123_000_000, time.UTC)
	require.True(t, FromMillis(ToMillis(now)).Equal(now))
	require.Nil(t, FromNullMillis(nullInt(0, false)))
	got := FromNullMillis(nullInt(ToMillis(now), true))
	require.NotNil(t, got)
	require.True(t, got.Equal(now))
}
