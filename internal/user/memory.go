package user

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps accounts in process memory. Used for tests and local
// development; nothing survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*LocalUser
	byUsername map[string]int64
	byEmail    map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		byID:       make(map[int64]*LocalUser),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
	}
}

func (s *MemoryStore) ByID(ctx context.Context, id int64) (*LocalUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) ByUsername(ctx context.Context, username string) (*LocalUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *MemoryStore) ByEmail(ctx context.Context, email string) (*LocalUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *MemoryStore) BySub(ctx context.Context, sub string) (*LocalUser, error) {
	if sub == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.byID {
		if u.Sub == sub {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byUsername[username]
	return ok, nil
}

func (s *MemoryStore) Create(ctx context.Context, u *LocalUser) (*LocalUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[u.Username]; ok {
		return nil, fmt.Errorf("%w: username %q", ErrDuplicate, u.Username)
	}
	if _, ok := s.byEmail[u.Email]; ok {
		return nil, fmt.Errorf("%w: email %q", ErrDuplicate, u.Email)
	}

	stored := *u
	stored.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.byID[stored.ID] = &stored
	s.byUsername[stored.Username] = stored.ID
	s.byEmail[stored.Email] = stored.ID

	out := stored
	return &out, nil
}

func (s *MemoryStore) UpdateIdentity(ctx context.Context, id int64, ident Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	u.Sub = ident.Sub
	u.Iss = ident.Iss
	u.EPPN = ident.EPPN
	u.EPTID = ident.EPTID
	u.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
