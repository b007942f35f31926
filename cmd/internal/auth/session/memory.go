package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"roleguard/cmd/security/token"
)

// MemoryRegistry keeps sessions in process memory.
// A single mutex guards both indexes, which makes admission atomic.
type MemoryRegistry struct {
	cfg    Config
	now    func() time.Time
	hasher token.Hasher

	mu     sync.Mutex
	byID   map[string]Session
	byUser map[string][]string // ids, oldest first
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry(cfg Config, opts ...Option) *MemoryRegistry {
	o := buildOptions(opts)
	return &MemoryRegistry{
		cfg:    cfg,
		now:    o.now,
		hasher: o.hasher,
		byID:   make(map[string]Session),
		byUser: make(map[string][]string),
	}
}

// Admit implements Registry.
func (r *MemoryRegistry) Admit(ctx context.Context, p Principal) (Admission, error) {
	if err := ctx.Err(); err != nil {
		return Admission{}, err
	}

	id, err := newSessionID()
	if err != nil {
		return Admission{}, fmt.Errorf("session: id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneLocked(p.Username, now)

	var evicted []string
	if !r.cfg.Unlimited() {
		ids := r.byUser[p.Username]
		if len(ids) >= r.cfg.MaxSessions {
			if r.cfg.BlockNewOnExceed {
				return Admission{Admitted: false}, nil
			}
			n := len(ids) - r.cfg.MaxSessions + 1
			for _, old := range ids[:n] {
				evicted = append(evicted, r.byID[old].Handle)
				delete(r.byID, old)
			}
			r.byUser[p.Username] = slices.Clone(ids[n:])
		}
	}

	s := Session{
		ID:        id,
		Handle:    r.hasher.Digest(id),
		Username:  p.Username,
		Role:      p.Role,
		CreatedAt: now,
		ExpiresAt: expiresAt(r.cfg, now),
	}
	r.byID[id] = s
	r.byUser[p.Username] = append(r.byUser[p.Username], id)

	return Admission{Admitted: true, Session: s, Evicted: evicted}, nil
}

// Resolve implements Registry.
func (r *MemoryRegistry) Resolve(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.Expired(r.now()) {
		r.removeLocked(id)
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// Invalidate implements Registry.
func (r *MemoryRegistry) Invalidate(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.removeLocked(id)
	r.mu.Unlock()
	return nil
}

// Active implements Registry.
func (r *MemoryRegistry) Active(ctx context.Context, username string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(username, r.now())

	ids := r.byUser[username]
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		s := r.byID[id]
		s.ID = ""
		out = append(out, s)
	}
	return out, nil
}

// Len returns the number of live and not yet pruned sessions.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *MemoryRegistry) removeLocked(id string) {
	s, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	ids := slices.DeleteFunc(r.byUser[s.Username], func(x string) bool { return x == id })
	if len(ids) == 0 {
		delete(r.byUser, s.Username)
		return
	}
	r.byUser[s.Username] = ids
}

func (r *MemoryRegistry) pruneLocked(username string, now time.Time) {
	ids := r.byUser[username]
	if len(ids) == 0 {
		return
	}
	kept := ids[:0]
	for _, id := range ids {
		if r.byID[id].Expired(now) {
			delete(r.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		delete(r.byUser, username)
		return
	}
	r.byUser[username] = kept
}
