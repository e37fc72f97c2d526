package credstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memRefresh struct {
	tok        RefreshToken
	replacedBy string
}

// MemoryStore is an in-process Store for dev mode and tests.
// Rotation is a compare-and-set under the store mutex; no I/O happens while it is held.
type MemoryStore struct {
	cfg settings

	mu      sync.RWMutex
	links   map[string]MagicLink   // token_hash -> link
	refresh map[string]*memRefresh // token_hash -> token
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		cfg:     newSettings(0, opts),
		links:   make(map[string]MagicLink),
		refresh: make(map[string]*memRefresh),
	}
}

func (s *MemoryStore) CreateMagicLink(ctx context.Context, email string, now time.Time) (MagicLink, error) {
	const op = "credstore.CreateMagicLink"
	if err := ctx.Err(); err != nil {
		return MagicLink{}, unavailable(op, err)
	}

	link, hash, err := s.cfg.mintMagicLink(op, email, now)
	if err != nil {
		return MagicLink{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[hash] = link
	return link, nil
}

func (s *MemoryStore) GetMagicLink(ctx context.Context, id string) (MagicLink, error) {
	const op = "credstore.GetMagicLink"
	if err := ctx.Err(); err != nil {
		return MagicLink{}, unavailable(op, err)
	}
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return MagicLink{}, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[hash]
	if !ok {
		return MagicLink{}, ErrNotFound
	}
	link.ID = strings.TrimSpace(id)
	return link, nil
}

func (s *MemoryStore) MarkMagicLinkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	const op = "credstore.MarkMagicLinkUsed"
	if err := ctx.Err(); err != nil {
		return false, unavailable(op, err)
	}
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return false, ErrNotFound
	}
	now = s.cfg.clock(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[hash]
	if !ok {
		return false, ErrNotFound
	}
	if link.UsedAt != nil {
		return false, nil
	}
	link.UsedAt = &now
	s.links[hash] = link
	return true, nil
}

func (s *MemoryStore) CreateRefreshToken(ctx context.Context, userID string, now time.Time) (RefreshToken, error) {
	const op = "credstore.CreateRefreshToken"
	if err := ctx.Err(); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}

	tok, hash, err := s.cfg.mintRefresh(op, userID, "", now)
	if err != nil {
		return RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[hash] = &memRefresh{tok: tok}
	return tok, nil
}

func (s *MemoryStore) GetRefreshToken(ctx context.Context, id string) (RefreshToken, error) {
	const op = "credstore.GetRefreshToken"
	if err := ctx.Err(); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return RefreshToken{}, ErrTokenNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.refresh[hash]
	if !ok {
		return RefreshToken{}, ErrTokenNotFound
	}
	out := r.tok
	out.ID = strings.TrimSpace(id)
	return out, nil
}

func (s *MemoryStore) RevokeRefreshToken(ctx context.Context, id string, now time.Time) error {
	const op = "credstore.RevokeRefreshToken"
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	hash, ok := s.cfg.lookupHash(id)
	if !ok {
		return nil
	}
	now = s.cfg.clock(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.refresh[hash]; ok && r.tok.RevokedAt == nil {
		r.tok.RevokedAt = &now
	}
	return nil
}

func (s *MemoryStore) RevokeAllRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	const op = "credstore.RevokeAllRefreshTokens"
	if err := ctx.Err(); err != nil {
		return 0, unavailable(op, err)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, invalid(op, "missing user id")
	}
	return s.revokeWhere(s.cfg.clock(now), func(t RefreshToken) bool { return t.UserID == userID }), nil
}

func (s *MemoryStore) RevokeRefreshTokenFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	const op = "credstore.RevokeRefreshTokenFamily"
	if err := ctx.Err(); err != nil {
		return 0, unavailable(op, err)
	}
	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return 0, invalid(op, "missing family id")
	}
	return s.revokeWhere(s.cfg.clock(now), func(t RefreshToken) bool { return t.FamilyID == familyID }), nil
}

func (s *MemoryStore) revokeWhere(now time.Time, match func(RefreshToken) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.refresh {
		if r.tok.RevokedAt == nil && match(r.tok) {
			at := now
			r.tok.RevokedAt = &at
			n++
		}
	}
	return n
}

func (s *MemoryStore) RotateRefreshToken(ctx context.Context, oldID, userID string, now time.Time) (RefreshToken, error) {
	const op = "credstore.RotateRefreshToken"
	if err := ctx.Err(); err != nil {
		return RefreshToken{}, unavailable(op, err)
	}
	oldHash, ok := s.cfg.lookupHash(oldID)
	if !ok {
		return RefreshToken{}, ErrTokenNotFound
	}
	userID = strings.TrimSpace(userID)
	now = s.cfg.clock(now)

	// Mint outside the lock; the family id is patched in once the predecessor is known.
	next, nextHash, err := s.cfg.mintRefresh(op, userID, "pending", now)
	if err != nil {
		return RefreshToken{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, found := s.refresh[oldHash]
	var cur RefreshToken
	if found {
		cur = r.tok
	}
	if !found || !cur.Valid(now) || cur.UserID != userID {
		return RefreshToken{}, classify(cur, found, userID, now)
	}

	revokedAt := now
	r.tok.RevokedAt = &revokedAt
	r.tok.Rotated = true
	r.replacedBy = nextHash

	next.FamilyID = cur.FamilyID
	s.refresh[nextHash] = &memRefresh{tok: next}
	return next, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
