package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/internal/storage"
)

// SQLiteStore implements the user directory over SQLite.
// The *sql.DB is owned by the caller.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already migrated database (see storage.OpenSQLite).
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil db")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureUser(ctx context.Context, email string, now time.Time) (User, bool, error) {
	const op = "identity.EnsureUser"

	u, norm, err := newUser(op, email, now)
	if err != nil {
		return User{}, false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, email_norm, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (email_norm) DO NOTHING`,
		u.ID, u.Username, u.Email, norm, storage.ToMillis(u.CreatedAt),
	)
	if err != nil {
		return User{}, false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return User{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if n == 1 {
		return u, true, nil
	}

	existing, err := s.GetUserByEmail(ctx, norm)
	if err != nil {
		return User{}, false, err
	}
	return existing, false, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing id")
	}
	return s.scanOne(ctx, op, "id",
		`SELECT id, username, email, created_at FROM users WHERE id = ?`, id)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}
	return s.scanOne(ctx, op, "email",
		`SELECT id, username, email, created_at FROM users WHERE email_norm = ?`, norm)
}

func (s *SQLiteStore) scanOne(ctx context.Context, op, by, query string, arg any) (User, error) {
	var (
		u         User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, notFound(op, by)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	u.CreatedAt = storage.FromMillis(createdAt)
	return u, nil
}

var _ Store = (*SQLiteStore)(nil)
