package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ldirer/livestore-chat/cmd/internal/storage"
)

// SQLiteStore implements Store over SQLite. Timestamps are unix milliseconds.
// The *sql.DB is owned by the caller and must be opened with storage.OpenSQLite
// (immediate transactions, busy timeout).
type SQLiteStore struct {
	cfg settings
	db  *sql.DB
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("credstore: nil db")
	}
	return &SQLiteStore{cfg: newSettings(time.Millisecond, opts), db: db}, nil
}

func (s *SQLiteStore) CreateMagicLink(ctx context.Context, email string, now time.Time) (MagicLink, error) {
	const op = "credstore.CreateMagicLink"

	link, hash, err := s.cfg.mintMagicLink(op, email, now)
	if err != nil {
		return MagicLink{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO magic_links (token_hash, email, created_at, expires_at, used_at)
		 VALUES (?, ?, ?, ?, NULL)`,
		hash, link.Email, storage.ToMillis(link.CreatedAt), storage.ToMillis(link.ExpiresAt),
	)
	if err != nil {
		return MagicLink{}, unavailable(op, err)
	}
	return link, nil
}

func (s *SQLiteStore) GetMagicLink(ctx context.Context, id string) (MagicLink, error) {
	const op = "credstore.GetMagicLink"
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return MagicLink{}, ErrNotFound
	}

	var (
		link                 MagicLink
		createdAt, expiresAt int64
		usedAt               sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT email, created_at, expires_at, used_at FROM magic_links WHERE token_hash = ?`, hash,
	).Scan(&link.Email, &createdAt, &expiresAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MagicLink{}, ErrNotFound
		}
		return MagicLink{}, unavailable(op, err)
	}

	link.ID = strings.TrimSpace(id)
	link.CreatedAt = storage.FromMillis(createdAt)
	link.ExpiresAt = storage.FromMillis(expiresAt)
	link.UsedAt = storage.FromNullMillis(usedAt)
	return link, nil
}

func (s *SQLiteStore) MarkMagicLinkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	const op = "credstore.MarkMagicLinkUsed"
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return false, ErrNotFound
	}
	now = s.cfg.clock(now)

	res, err := s.db.ExecContext(ctx,
		`UPDATE magic_links SET used_at = ? WHERE token_hash = ? AND used_at IS NULL`,
		storage.ToMillis(now), hash,
	)
	if err != nil {
		return false, unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(op, err)
	}
	if n == 1 {
		return true, nil
	}

	// Either already used or missing.
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM magic_links WHERE token_hash = ?`, hash).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, unavailable(op, err)
	}
	return false, nil
}

func (s *SQLiteStore) CreateRefreshToken(ctx context.Context, userID string, now time.Time) (RefreshToken, error) {
	const op = "credstore.CreateRefreshToken"

	tok, hash, err := s.cfg.mintRefresh(op, userID, "", now)
	if err != nil {
		return RefreshToken{}, err
	}
	if err := sqliteInsertRefresh(ctx, s.db, hash, tok); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	return tok, nil
}

func (s *SQLiteStore) GetRefreshToken(ctx context.Context, id string) (RefreshToken, error) {
	const op = "credstore.GetRefreshToken"
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return RefreshToken{}, ErrTokenNotFound
	}

	tok, found, err := sqliteGetRefresh(ctx, s.db, hash)
	if err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	if !found {
		return RefreshToken{}, ErrTokenNotFound
	}
	tok.ID = strings.TrimSpace(id)
	return tok, nil
}

func (s *SQLiteStore) RevokeRefreshToken(ctx context.Context, id string, now time.Time) error {
	const op = "credstore.RevokeRefreshToken"
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		storage.ToMillis(s.cfg.clock(now)), hash,
	)
	if err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *SQLiteStore) RevokeAllRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	const op = "credstore.RevokeAllRefreshTokens"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, invalid(op, "missing user id")
	}
	return s.revokeWhere(ctx, op, "user_id", userID, now)
}

func (s *SQLiteStore) RevokeRefreshTokenFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	const op = "credstore.RevokeRefreshTokenFamily"
	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return 0, invalid(op, "missing family id")
	}
	return s.revokeWhere(ctx, op, "family_id", familyID, now)
}

// revokeWhere is only called with constant column names.
func (s *SQLiteStore) revokeWhere(ctx context.Context, op, column, value string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE `+column+` = ? AND revoked_at IS NULL`,
		storage.ToMillis(s.cfg.clock(now)), value,
	)
	if err != nil {
		return 0, unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(op, err)
	}
	return n, nil
}

func (s *SQLiteStore) RotateRefreshToken(ctx context.Context, oldID, userID string, now time.Time) (RefreshToken, error) {
	const op = "credstore.RotateRefreshToken"
	oldHash, ok := s.cfg.lookupHash(oldID)
	if !ok {
		return RefreshToken{}, ErrTokenNotFound
	}
	userID = strings.TrimSpace(userID)
	now = s.cfg.clock(now)

	next, nextHash, err := s.cfg.mintRefresh(op, userID, "pending", now)
	if err != nil {
		return RefreshToken{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	nowMs := storage.ToMillis(now)
	var familyID string
	err = tx.QueryRowContext(ctx,
		`UPDATE refresh_tokens
		    SET revoked_at = ?, replaced_by_hash = ?
		  WHERE token_hash = ?
		    AND user_id = ?
		    AND revoked_at IS NULL
		    AND expires_at > ?
		RETURNING family_id`,
		nowMs, nextHash, oldHash, userID, nowMs,
	).Scan(&familyID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return RefreshToken{}, unavailable(op, err)
		}
		cur, found, rerr := sqliteGetRefresh(ctx, tx, oldHash)
		if rerr != nil {
			return RefreshToken{}, unavailable(op, rerr)
		}
		return RefreshToken{}, classify(cur, found, userID, now)
	}

	next.FamilyID = familyID

	// The successor is written under a savepoint so a failed insert still lets
	// the revocation commit.
	if _, err := tx.ExecContext(ctx, `SAVEPOINT successor`); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	if insErr := sqliteInsertRefresh(ctx, tx, nextHash, next); insErr != nil {
		if _, err := tx.ExecContext(ctx, `ROLLBACK TO successor`); err != nil {
			return RefreshToken{}, unavailable(op, errors.Join(insErr, err))
		}
		if err := tx.Commit(); err != nil {
			return RefreshToken{}, unavailable(op, errors.Join(insErr, err))
		}
		return RefreshToken{}, unavailable(op, insErr)
	}
	if _, err := tx.ExecContext(ctx, `RELEASE successor`); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}

	if err := tx.Commit(); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	return next, nil
}

func (s *SQLiteStore) Close() error { return nil }

type sqliteExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqliteQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteInsertRefresh(ctx context.Context, db sqliteExecer, hash string, t RefreshToken) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, family_id, created_at, expires_at, revoked_at, replaced_by_hash)
		 VALUES (?, ?, ?, ?, ?, NULL, NULL)`,
		hash, t.UserID, t.FamilyID, storage.ToMillis(t.CreatedAt), storage.ToMillis(t.ExpiresAt),
	)
	return err
}

func sqliteGetRefresh(ctx context.Context, db sqliteQueryer, hash string) (RefreshToken, bool, error) {
	var (
		t                    RefreshToken
		createdAt, expiresAt int64
		revokedAt            sql.NullInt64
		replacedBy           sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT user_id, family_id, created_at, expires_at, revoked_at, replaced_by_hash
		   FROM refresh_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.UserID, &t.FamilyID, &createdAt, &expiresAt, &revokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshToken{}, false, nil
		}
		return RefreshToken{}, false, err
	}
	t.CreatedAt = storage.FromMillis(createdAt)
	t.ExpiresAt = storage.FromMillis(expiresAt)
	t.RevokedAt = storage.FromNullMillis(revokedAt)
	t.Rotated = replacedBy.Valid
	return t, true, nil
}

var _ Store = (*SQLiteStore)(nil)
