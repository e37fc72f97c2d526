package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the user directory over PostgreSQL.
//
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Tables are resolved through the connection search_path.
//   - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureUser inserts the user unless one already owns the normalized address.
// ON CONFLICT DO NOTHING keeps concurrent first logins for one address from failing.
func (s *PostgresStore) EnsureUser(ctx context.Context, email string, now time.Time) (User, bool, error) {
	const op = "identity.EnsureUser"

	u, norm, err := newUser(op, email, now)
	if err != nil {
		return User{}, false, err
	}

	ct, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, email_norm, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email_norm) DO NOTHING`,
		u.ID, u.Username, u.Email, norm, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, false, ConflictError{Op: op, Field: field}
		}
		return User{}, false, fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 1 {
		return u, true, nil
	}

	existing, err := s.GetUserByEmail(ctx, norm)
	if err != nil {
		return User{}, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing id")
	}
	return s.scanOne(ctx, op, "id",
		`SELECT id, username, email, created_at FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}
	return s.scanOne(ctx, op, "email",
		`SELECT id, username, email, created_at FROM users WHERE email_norm = $1`, norm)
}

func (s *PostgresStore) scanOne(ctx context.Context, op, by, query string, arg any) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, notFound(op, by)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "", true
	}
}

var _ Store = (*PostgresStore)(nil)
