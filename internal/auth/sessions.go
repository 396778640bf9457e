package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meshresearch/cilogon-rp/internal/cache"
	"github.com/meshresearch/cilogon-rp/internal/user"
	"github.com/meshresearch/cilogon-rp/pkg/security"
)

var ErrNoSession = errors.New("no valid session")

// SessionManager establishes and looks up local sessions. It is the final
// step of a successful login; nothing creates sessions on any other path.
type SessionManager struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewSessionManager(c cache.Cache, ttl time.Duration) *SessionManager {
	return &SessionManager{
		cache: c,
		ttl:   ttl,
	}
}

// Establish creates and stores a session for a provisioned user.
func (m *SessionManager) Establish(ctx context.Context, u *user.LocalUser) (*Session, error) {
	csrfToken, err := security.GenerateCSRFToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Sub:       u.Sub,
		Iss:       u.Iss,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		CSRFToken: csrfToken,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := m.cache.Set(ctx, sessionKey(session.ID), data, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Lookup returns the session for id, or ErrNoSession if it is unknown or
// expired.
func (m *SessionManager) Lookup(ctx context.Context, id string) (*Session, error) {
	data, err := m.cache.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if !session.Valid() {
		m.cache.Delete(ctx, sessionKey(id))
		return nil, ErrNoSession
	}

	return &session, nil
}

// Destroy removes a session. Destroying an unknown session is not an error.
func (m *SessionManager) Destroy(ctx context.Context, id string) error {
	return m.cache.Delete(ctx, sessionKey(id))
}

func sessionKey(id string) string {
	return "session:" + id
}
