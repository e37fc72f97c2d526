package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for dev mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string // email_norm -> id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) EnsureUser(ctx context.Context, email string, now time.Time) (User, bool, error) {
	const op = "identity.EnsureUser"
	if err := ctx.Err(); err != nil {
		return User{}, false, err
	}

	u, norm, err := newUser(op, email, now)
	if err != nil {
		return User{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byEmail[norm]; ok {
		return s.byID[id], false, nil
	}
	s.byID[u.ID] = u
	s.byEmail[norm] = u.ID
	return u, true, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing id")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, notFound(op, "id")
	}
	return u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[norm]
	if !ok {
		return User{}, notFound(op, "email")
	}
	return s.byID[id], nil
}

var _ Store = (*MemoryStore)(nil)
