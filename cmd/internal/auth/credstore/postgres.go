package credstore

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

// PostgresStore implements Store over PostgreSQL.
//
//   - The pgx pool is owned by the caller; Close does not close it.
//   - Rotation runs in one READ COMMITTED transaction; the conditional UPDATE
//     takes the row lock, so a concurrent rotation blocks and then matches zero rows.
type PostgresStore struct {
	cfg  settings
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a pool whose search_path contains the migrated tables.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("credstore: nil pool")
	}
	return &PostgresStore{cfg: newSettings(time.Microsecond, opts), pool: pool}, nil
}

func (s *PostgresStore) CreateMagicLink(ctx context.Context, email string, now time.Time) (MagicLink, error) {
	const op = "credstore.CreateMagicLink"

	link, hash, err := s.cfg.mintMagicLink(op, email, now)
	if err != nil {
		return MagicLink{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO magic_links (token_hash, email, created_at, expires_at, used_at)
		 VALUES ($1, $2, $3, $4, NULL)`,
		hash, link.Email, link.CreatedAt, link.ExpiresAt,
	)
	if err != nil {
		return MagicLink{}, unavailable(op, err)
	}
	return link, nil
}

func (s *PostgresStore) GetMagicLink(ctx context.Context, id string) (MagicLink, error) {
	const op = "credstore.GetMagicLink"
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return MagicLink{}, ErrNotFound
	}

	var link MagicLink
	err := s.pool.QueryRow(ctx,
		`SELECT email, created_at, expires_at, used_at FROM magic_links WHERE token_hash = $1`, hash,
	).Scan(&link.Email, &link.CreatedAt, &link.ExpiresAt, &link.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MagicLink{}, ErrNotFound
		}
		return MagicLink{}, unavailable(op, err)
	}

	link.ID = strings.TrimSpace(id)
	link.CreatedAt = link.CreatedAt.UTC()
	link.ExpiresAt = link.ExpiresAt.UTC()
	link.UsedAt = utcPtr(link.UsedAt)
	return link, nil
}

func (s *PostgresStore) MarkMagicLinkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	const op = "credstore.MarkMagicLinkUsed"
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return false, ErrNotFound
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE magic_links SET used_at = $1 WHERE token_hash = $2 AND used_at IS NULL`,
		s.cfg.clock(now), hash,
	)
	if err != nil {
		return false, unavailable(op, err)
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}

	var one int
	err = s.pool.QueryRow(ctx, `SELECT 1 FROM magic_links WHERE token_hash = $1`, hash).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, unavailable(op, err)
	}
	return false, nil
}

func (s *PostgresStore) CreateRefreshToken(ctx context.Context, userID string, now time.Time) (RefreshToken, error) {
	const op = "credstore.CreateRefreshToken"

	tok, hash, err := s.cfg.mintRefresh(op, userID, "", now)
	if err != nil {
		return RefreshToken{}, err
	}
	if err := pgInsertRefresh(ctx, s.pool, hash, tok); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	return tok, nil
}

func (s *PostgresStore) GetRefreshToken(ctx context.Context, id string) (RefreshToken, error) {
	const op = "credstore.GetRefreshToken"
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return RefreshToken{}, ErrTokenNotFound
	}

	tok, found, err := pgGetRefresh(ctx, s.pool, hash)
	if err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	if !found {
		return RefreshToken{}, ErrTokenNotFound
	}
	tok.ID = strings.TrimSpace(id)
	return tok, nil
}

func (s *PostgresStore) RevokeRefreshToken(ctx context.Context, id string, now time.Time) error {
	const op = "credstore.RevokeRefreshToken"
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`,
		s.cfg.clock(now), hash,
	)
	if err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *PostgresStore) RevokeAllRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	const op = "credstore.RevokeAllRefreshTokens"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, invalid(op, "missing user id")
	}
	return s.revokeLocked(ctx, op, userID,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`,
		s.cfg.clock(now), userID,
	)
}

func (s *PostgresStore) RevokeRefreshTokenFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	const op = "credstore.RevokeRefreshTokenFamily"
	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return 0, invalid(op, "missing family id")
	}

	// A lineage never changes owner, so any row names the user to lock.
	var userID string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM refresh_tokens WHERE family_id = $1 LIMIT 1`, familyID,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(op, err)
	}
	return s.revokeLocked(ctx, op, userID,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE family_id = $2 AND revoked_at IS NULL`,
		s.cfg.clock(now), familyID,
	)
}

// revokeLocked runs a bulk revoke while holding the user's refresh lock.
// The UPDATE starts after any in-flight rotation for the user has committed, so
// its snapshot includes the successor that rotation inserted.
func (s *PostgresStore) revokeLocked(ctx context.Context, op, userID, query string, args ...any) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return 0, unavailable(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUserRefresh(ctx, tx, userID); err != nil {
		return 0, unavailable(op, err)
	}
	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, unavailable(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable(op, err)
	}
	return ct.RowsAffected(), nil
}

// lockUserRefresh serializes rotation and bulk revocation for one user until the
// transaction ends.
func lockUserRefresh(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('refresh_tokens:' || $1))`, userID)
	return err
}

func (s *PostgresStore) RotateRefreshToken(ctx context.Context, oldID, userID string, now time.Time) (RefreshToken, error) {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUserRefresh(ctx, tx, userID); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}

	// Single-writer guard: only one caller can see the row as active.
	var familyID string
	err = tx.QueryRow(ctx,
		`UPDATE refresh_tokens
		    SET revoked_at = $1, replaced_by_hash = $2
		  WHERE token_hash = $3
		    AND user_id = $4
		    AND revoked_at IS NULL
		    AND expires_at > $1
		RETURNING family_id`,
		now, nextHash, oldHash, userID,
	).Scan(&familyID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, unavailable(op, err)
		}
		cur, found, rerr := pgGetRefresh(ctx, tx, oldHash)
		if rerr != nil {
			return RefreshToken{}, unavailable(op, rerr)
		}
		return RefreshToken{}, classify(cur, found, userID, now)
	}

	next.FamilyID = familyID

	// Savepoint: an aborted insert must not roll back the revocation.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	if insErr := pgInsertRefresh(ctx, sp, nextHash, next); insErr != nil {
		if err := sp.Rollback(ctx); err != nil {
			return RefreshToken{}, unavailable(op, errors.Join(insErr, err))
		}
		if err := tx.Commit(ctx); err != nil {
			return RefreshToken{}, unavailable(op, errors.Join(insErr, err))
		}
		return RefreshToken{}, unavailable(op, insErr)
	}
	if err := sp.Commit(ctx); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	return next, nil
}

func (s *PostgresStore) Close() error { return nil }

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgInsertRefresh(ctx context.Context, db pgExecer, hash string, t RefreshToken) error {
	_, err := db.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, family_id, created_at, expires_at, revoked_at, replaced_by_hash)
		 VALUES ($1, $2, $3, $4, $5, NULL, NULL)`,
		hash, t.UserID, t.FamilyID, t.CreatedAt, t.ExpiresAt,
	)
	return err
}

func pgGetRefresh(ctx context.Context, db pgQueryer, hash string) (RefreshToken, bool, error) {
	var (
		t          RefreshToken
		replacedBy *string
	)
	err := db.QueryRow(ctx,
		`SELECT user_id, family_id, created_at, expires_at, revoked_at, replaced_by_hash
		   FROM refresh_tokens WHERE token_hash = $1`, hash,
	).Scan(&t.UserID, &t.FamilyID, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshToken{}, false, nil
		}
		return RefreshToken{}, false, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.RevokedAt = utcPtr(t.RevokedAt)
	t.Rotated = replacedBy != nil
	return t, true, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ Store = (*PostgresStore)(nil)
