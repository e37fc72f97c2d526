package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ldirer/livestore-chat/cmd/internal/storage/storagetest"
	"github.com/ldirer/livestore-chat/cmd/security/token"
)

type storeFactory func(t *testing.T, opts ...Option) Store

func storeBackends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, opts ...Option) Store { return NewMemoryStore(opts...) },
		"sqlite": func(t *testing.T, opts ...Option) Store {
			s, err := NewSQLiteStore(storagetest.SQLite(t), opts...)
			require.NoError(t, err)
			return s
		},
		"postgres": func(t *testing.T, opts ...Option) Store {
			s, err := NewPostgresStore(storagetest.Postgres(t), opts...)
			require.NoError(t, err)
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, mk func(opts ...Option) Store)) {
	for name, mk := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			fn(t, func(opts ...Option) Store { return mk(t, opts...) })
		})
	}
}

var t0 = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestMagicLink_CreateGetConsume(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()

		link, err := s.CreateMagicLink(ctx, "alice@example.com", t0)
		require.NoError(t, err)
		require.Len(t, link.ID, 43)
		require.True(t, link.ExpiresAt.Equal(t0.Add(DefaultMagicLinkTTL)))
		require.Nil(t, link.UsedAt)

		got, err := s.GetMagicLink(ctx, link.ID)
		require.NoError(t, err)
		require.Equal(t, "alice@example.com", got.Email)
		require.True(t, got.CreatedAt.Equal(t0))
		require.False(t, got.Used())

		consumed, err := s.MarkMagicLinkUsed(ctx, link.ID, t0.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, consumed)

		consumed, err = s.MarkMagicLinkUsed(ctx, link.ID, t0.Add(2*time.Minute))
		require.NoError(t, err)
		require.False(t, consumed)

		got, err = s.GetMagicLink(ctx, link.ID)
		require.NoError(t, err)
		require.NotNil(t, got.UsedAt)
		require.True(t, got.UsedAt.Equal(t0.Add(time.Minute)), "used_at must keep the first consumption")
	})
}

func TestMagicLink_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()

		for _, id := range []string{"", "   ", "nope", strings.Repeat("a", maxTokenLen+1)} {
			_, err := s.GetMagicLink(ctx, id)
			require.ErrorIs(t, err, ErrNotFound, "id %q", id)

			_, err = s.MarkMagicLinkUsed(ctx, id, t0)
			require.ErrorIs(t, err, ErrNotFound, "id %q", id)
		}

		_, err := s.CreateMagicLink(ctx, "  ", t0)
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestMagicLink_ExpiryBoundary(t *testing.T) {
	link := MagicLink{ExpiresAt: t0}
	require.False(t, link.Expired(t0))
	require.True(t, link.Expired(t0.Add(time.Millisecond)))
}

func TestMagicLink_ConcurrentConsumeHasOneWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()

		link, err := s.CreateMagicLink(ctx, "race@example.com", t0)
		require.NoError(t, err)

		const n = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
			errs    []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.MarkMagicLinkUsed(ctx, link.ID, t0.Add(time.Second))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if ok {
					winners++
				}
			}()
		}
		wg.Wait()

		require.Empty(t, errs)
		require.Equal(t, 1, winners)
	})
}

func TestRefresh_CreateGetRevoke(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()

		tok, err := s.CreateRefreshToken(ctx, "u1", t0)
		require.NoError(t, err)
		require.Equal(t, "u1", tok.UserID)
		require.Len(t, tok.FamilyID, 26)
		require.True(t, tok.ExpiresAt.Equal(t0.Add(DefaultRefreshTTL)))

		got, err := s.GetRefreshToken(ctx, tok.ID)
		require.NoError(t, err)
		require.Equal(t, tok.FamilyID, got.FamilyID)
		require.True(t, got.Valid(t0))
		require.False(t, got.Rotated)

		require.NoError(t, s.RevokeRefreshToken(ctx, tok.ID, t0.Add(time.Minute)))
		require.NoError(t, s.RevokeRefreshToken(ctx, tok.ID, t0.Add(2*time.Minute)))
		require.NoError(t, s.RevokeRefreshToken(ctx, "missing", t0))

		got, err = s.GetRefreshToken(ctx, tok.ID)
		require.NoError(t, err)
		require.True(t, got.Revoked())
		require.True(t, got.RevokedAt.Equal(t0.Add(time.Minute)))
		require.False(t, got.Rotated)

		_, err = s.GetRefreshToken(ctx, "missing")
		require.ErrorIs(t, err, ErrTokenNotFound)

		_, err = s.CreateRefreshToken(ctx, " ", t0)
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRefresh_ExpiryBoundary(t *testing.T) {
	tok := RefreshToken{ExpiresAt: t0}
	require.True(t, tok.Valid(t0.Add(-time.Millisecond)))
	require.False(t, tok.Valid(t0))
}

func TestRefresh_RevokeAllAndFamily(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()

		a, err := s.CreateRefreshToken(ctx, "u1", t0)
		require.NoError(t, err)
		b, err := s.CreateRefreshToken(ctx, "u1", t0)
		require.NoError(t, err)
		other, err := s.CreateRefreshToken(ctx, "u2", t0)
		require.NoError(t, err)
		require.NotEqual(t, a.FamilyID, b.FamilyID)

		a2, err := s.RotateRefreshToken(ctx, a.ID, "u1", t0.Add(time.Minute))
		require.NoError(t, err)

		n, err := s.RevokeRefreshTokenFamily(ctx, a.FamilyID, t0.Add(2*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 1, n, "only the active successor is still revocable")

		got, err := s.GetRefreshToken(ctx, a2.ID)
		require.NoError(t, err)
		require.True(t, got.Revoked())

		n, err = s.RevokeAllRefreshTokens(ctx, "u1", t0.Add(3*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		n, err = s.RevokeAllRefreshTokens(ctx, "u1", t0.Add(4*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 0, n)

		got, err = s.GetRefreshToken(ctx, other.ID)
		require.NoError(t, err)
		require.True(t, got.Valid(t0.Add(5*time.Minute)))

		_, err = s.RevokeAllRefreshTokens(ctx, "", t0)
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = s.RevokeRefreshTokenFamily(ctx, "", t0)
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRotate_IssuesSuccessorInSameFamily(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk(WithRefreshTTL(time.Hour))
		ctx := context.Background()

		old, err := s.CreateRefreshToken(ctx, "u1", t0)
		require.NoError(t, err)

		at := t0.Add(10 * time.Minute)
		next, err := s.RotateRefreshToken(ctx, old.ID, "u1", at)
		require.NoError(t, err)
		require.NotEqual(t, old.ID, next.ID)
		require.Equal(t, old.FamilyID, next.FamilyID)
		require.Equal(t, "u1", next.UserID)
		require.True(t, next.ExpiresAt.Equal(at.Add(time.Hour)))

		prev, err := s.GetRefreshToken(ctx, old.ID)
		require.NoError(t, err)
		require.True(t, prev.Revoked())
		require.True(t, prev.Rotated)
		require.True(t, prev.RevokedAt.Equal(at))

		cur, err := s.GetRefreshToken(ctx, next.ID)
		require.NoError(t, err)
		require.True(t, cur.Valid(at))
	})
}

func TestRotate_Failures(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk(WithRefreshTTL(time.Hour))
		ctx := context.Background()

		tok, err := s.CreateRefreshToken(ctx, "u1", t0)
		require.NoError(t, err)

		_, err = s.RotateRefreshToken(ctx, "missing", "u1", t0)
		require.ErrorIs(t, err, ErrTokenNotFound)

		_, err = s.RotateRefreshToken(ctx, tok.ID, "someone-else", t0)
		require.ErrorIs(t, err, ErrTokenNotFound)

		_, err = s.RotateRefreshToken(ctx, tok.ID, "u1", t0.Add(time.Hour))
		require.ErrorIs(t, err, ErrTokenExpired)

		require.NoError(t, s.RevokeRefreshToken(ctx, tok.ID, t0.Add(time.Minute)))
		_, err = s.RotateRefreshToken(ctx, tok.ID, "u1", t0.Add(2*time.Minute))
		require.ErrorIs(t, err, ErrTokenRevoked)

		// A failed rotation never leaves a usable successor behind.
		n, err := s.RevokeAllRefreshTokens(ctx, "u1", t0.Add(3*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 0, n)
	})
}

func TestRotate_ReuseOfRotatedToken(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()

		old, err := s.CreateRefreshToken(ctx, "u1", t0)
		require.NoError(t, err)
		_, err = s.RotateRefreshToken(ctx, old.ID, "u1", t0.Add(time.Second))
		require.NoError(t, err)

		_, err = s.RotateRefreshToken(ctx, old.ID, "u1", t0.Add(2*time.Second))
		require.ErrorIs(t, err, ErrTokenRevoked)
	})
}

func TestRotate_ConcurrentHasOneWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()

		old, err := s.CreateRefreshToken(ctx, "u1", t0)
		require.NoError(t, err)

		const n = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []RefreshToken
			other   []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next, err := s.RotateRefreshToken(ctx, old.ID, "u1", t0.Add(time.Second))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners = append(winners, next)
				case errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrTokenNotFound):
				default:
					other = append(other, err)
				}
			}()
		}
		wg.Wait()

		require.Empty(t, other)
		require.Len(t, winners, 1)

		active, err := s.RevokeAllRefreshTokens(ctx, "u1", t0.Add(time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 1, active, "exactly one successor may exist")
	})
}

func TestRevokeAll_RacingRotationLeavesNothingValid(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()
		at := t0.Add(time.Second)

		for i := 0; i < 50; i++ {
			user := fmt.Sprintf("u%d", i)
			old, err := s.CreateRefreshToken(ctx, user, t0)
			require.NoError(t, err)

			var wg sync.WaitGroup
			var rotateErr, revokeErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, rotateErr = s.RotateRefreshToken(ctx, old.ID, user, at)
			}()
			go func() {
				defer wg.Done()
				_, revokeErr = s.RevokeAllRefreshTokens(ctx, user, at)
			}()
			wg.Wait()

			require.NoError(t, revokeErr)
			if rotateErr != nil {
				require.ErrorIs(t, rotateErr, ErrTokenRevoked)
			}

			left, err := s.RevokeAllRefreshTokens(ctx, user, at.Add(time.Second))
			require.NoError(t, err)
			require.EqualValues(t, 0, left, "iteration %d: a token survived revoke-all", i)
		}
	})
}

func TestRevokeFamily_RacingRotationLeavesNothingValid(t *testing.T) {
	forEachStore(t, func(t *testing.T, mk func(...Option) Store) {
		s := mk()
		ctx := context.Background()
		at := t0.Add(time.Second)

		for i := 0; i < 50; i++ {
			user := fmt.Sprintf("u%d", i)
			old, err := s.CreateRefreshToken(ctx, user, t0)
			require.NoError(t, err)

			var wg sync.WaitGroup
			var revokeErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = s.RotateRefreshToken(ctx, old.ID, user, at)
			}()
			go func() {
				defer wg.Done()
				_, revokeErr = s.RevokeRefreshTokenFamily(ctx, old.FamilyID, at)
			}()
			wg.Wait()
			require.NoError(t, revokeErr)

			left, err := s.RevokeRefreshTokenFamily(ctx, old.FamilyID, at.Add(time.Second))
			require.NoError(t, err)
			require.EqualValues(t, 0, left, "iteration %d: lineage survived revocation", i)
		}
	})
}

func TestSQLiteRotate_InsertFailureKeepsRevocation(t *testing.T) {
	db := storagetest.SQLite(t)
	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	old, err := s.CreateRefreshToken(ctx, "u1", t0)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TRIGGER reject_refresh_insert BEFORE INSERT ON refresh_tokens
		BEGIN SELECT RAISE(ABORT, 'insert rejected'); END`)
	require.NoError(t, err)

	_, err = s.RotateRefreshToken(ctx, old.ID, "u1", t0.Add(time.Second))
	require.ErrorIs(t, err, ErrStorageUnavailable)

	got, err := s.GetRefreshToken(ctx, old.ID)
	require.NoError(t, err)
	require.True(t, got.Revoked(), "the old token must stay revoked when the successor cannot be stored")
	require.True(t, got.Rotated)
}

func TestStore_StoresDigestOnly(t *testing.T) {
	db := storagetest.SQLite(t)
	h, err := token.NewHasher(strings.Repeat("k", token.MinHMACKeyBytes))
	require.NoError(t, err)

	s, err := NewSQLiteStore(db, WithHasher(h))
	require.NoError(t, err)
	ctx := context.Background()

	link, err := s.CreateMagicLink(ctx, "alice@example.com", t0)
	require.NoError(t, err)
	tok, err := s.CreateRefreshToken(ctx, "u1", t0)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM magic_links WHERE token_hash = ?`, h.Hash(link.ID)).Scan(&n))
	require.Equal(t, 1, n)
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE token_hash = ?`, h.Hash(tok.ID)).Scan(&n))
	require.Equal(t, 1, n)
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE token_hash = ?`, tok.ID).Scan(&n))
	require.Equal(t, 0, n)

	// A SHA-256 store cannot resolve HMAC digests.
	plain, err := NewSQLiteStore(db)
	require.NoError(t, err)
	_, err = plain.GetRefreshToken(ctx, tok.ID)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestStorageErrorsAreClassified(t *testing.T) {
	db := storagetest.SQLite(t)
	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = s.CreateRefreshToken(context.Background(), "u1", t0)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	var op *OpError
	require.ErrorAs(t, err, &op)
	require.Equal(t, "credstore.CreateRefreshToken", op.Op)
}
