package identity

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a fixed, process-local credential store.
// It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User // keyed by normalized username
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

// FindByUsername implements Store.
func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.MemoryStore.FindByUsername"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	u, ok := s.users[NormalizeUsername(username)]
	s.mu.RUnlock()
	if !ok {
		return User{}, userNotFound(op)
	}
	return u, nil
}

// ExistsByUsername implements Store.
func (s *MemoryStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	_, ok := s.users[NormalizeUsername(username)]
	s.mu.RUnlock()
	return ok, nil
}

// CreateUser implements Store.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.MemoryStore.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.Username]; exists {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	s.users[u.Username] = u
	return u, nil
}

// Usernames returns the stored usernames in sorted order.
func (s *MemoryStore) Usernames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.users))
	for name := range s.users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
