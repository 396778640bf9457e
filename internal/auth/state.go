package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meshresearch/cilogon-rp/internal/cache"
)

// AuthState is the opaque value carried through the provider round trip as
// the OIDC state parameter. It is base64(JSON)-encoded so the provider can
// echo it back unchanged.
type AuthState struct {
	SessionKey   string `json:"session_key"`
	CallbackNext string `json:"callback_next"`
}

// Encode serializes the state for use as the OIDC state parameter.
func (s AuthState) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeState parses an encoded state value. It performs no trust checks;
// callers must still consume the state against the issued-state record.
func DecodeState(encoded string) (*AuthState, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed state encoding: %w", err)
	}
	var s AuthState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("malformed state payload: %w", err)
	}
	if s.SessionKey == "" {
		return nil, errors.New("state missing session key")
	}
	return &s, nil
}

// IssuedState is the server-side record of a pending login attempt, stored
// under the state's session key until the callback consumes it.
type IssuedState struct {
	Encoded      string    `json:"encoded"`
	CallbackNext string    `json:"callback_next"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}

// StateManager issues and consumes per-login AuthState records. Each state
// is single-use: consuming deletes the record, so a replayed callback fails.
type StateManager struct {
	cache       cache.Cache
	defaultNext string
	ttl         time.Duration
}

func NewStateManager(c cache.Cache, defaultNext string, ttl time.Duration) *StateManager {
	return &StateManager{
		cache:       c,
		defaultNext: defaultNext,
		ttl:         ttl,
	}
}

// Begin creates a fresh AuthState for one login attempt. next defaults to
// the configured landing page when empty.
func (m *StateManager) Begin(ctx context.Context, next string) (*IssuedState, error) {
	if next == "" {
		next = m.defaultNext
	}

	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	verifier := make([]byte, 32)
	if _, err := rand.Read(verifier); err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	state := AuthState{
		SessionKey:   hex.EncodeToString(key),
		CallbackNext: next,
	}
	encoded, err := state.Encode()
	if err != nil {
		return nil, err
	}

	issued := &IssuedState{
		Encoded:      encoded,
		CallbackNext: next,
		CodeVerifier: base64.RawURLEncoding.EncodeToString(verifier),
		CreatedAt:    time.Now(),
	}

	data, err := json.Marshal(issued)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal issued state: %w", err)
	}

	if err := m.cache.Set(ctx, stateKey(state.SessionKey), data, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to store login state: %w", err)
	}

	return issued, nil
}

// Consume validates and retires a state echoed back by the provider. A
// missing, expired, or mismatched record means the callback did not
// originate from a login this service issued, which indicates a broken
// provider integration rather than a user mistake.
func (m *StateManager) Consume(ctx context.Context, encoded string) (*IssuedState, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: callback carried no state", ErrConfiguration)
	}

	state, err := DecodeState(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	data, err := m.cache.Get(ctx, stateKey(state.SessionKey))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown or already-consumed state", ErrConfiguration)
		}
		return nil, fmt.Errorf("failed to load login state: %w", err)
	}

	var issued IssuedState
	if err := json.Unmarshal(data, &issued); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issued state: %w", err)
	}

	if issued.Encoded != encoded {
		return nil, fmt.Errorf("%w: state does not match issued value", ErrConfiguration)
	}

	// Retire before returning so a replay of the same state fails.
	if err := m.cache.Delete(ctx, stateKey(state.SessionKey)); err != nil {
		return nil, fmt.Errorf("failed to retire login state: %w", err)
	}

	return &issued, nil
}

func stateKey(sessionKey string) string {
	return "state:" + sessionKey
}
