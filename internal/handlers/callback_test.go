package handlers

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/auth/oidc"
	"github.com/meshresearch/cilogon-rp/internal/cache"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/internal/directory"
	"github.com/meshresearch/cilogon-rp/internal/linking"
	"github.com/meshresearch/cilogon-rp/internal/provision"
	"github.com/meshresearch/cilogon-rp/internal/user"
)

type fakeExchanger struct {
	identity *oidc.Identity
	err      error
}

func (f *fakeExchanger) Exchange(ctx context.Context, code, codeVerifier string) (*oidc.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fakeResolver struct {
	profile *directory.Profile
	err     error
}

func (f *fakeResolver) Resolve(ctx context.Context, sub string) (*directory.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type callbackFixture struct {
	handler  *CallbackHandler
	states   *auth.StateManager
	sessions *auth.SessionManager
	store    *user.MemoryStore
}

func serverConfig() config.ServerConfig {
	return config.ServerConfig{
		CookieName:     "cilogon-rp-session",
		CookieHTTPOnly: true,
		CookieSameSite: "lax",
		SessionTTL:     time.Hour,
	}
}

func newCallbackFixture(t *testing.T, exchanger identityExchanger, resolver profileResolver) *callbackFixture {
	t.Helper()

	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	states := auth.NewStateManager(c, "/", 5*time.Minute)
	sessions := auth.NewSessionManager(c, time.Hour)
	store := user.NewMemoryStore()
	provisioner := provision.New(store, config.LoginConfig{
		DefaultRole:       "subscriber",
		UsernameFallback:  "cilogon_user",
		MaxUsernameProbes: 100,
	}, logger)
	linker := linking.New(config.DirectoryConfig{
		BaseURL:       "https://profiles.example.org",
		LinkingSecret: "shared-secret",
	})

	return &callbackFixture{
		handler: NewCallbackHandler(
			serverConfig(), states, exchanger, resolver, linker, provisioner, sessions, logger),
		states:   states,
		sessions: sessions,
		store:    store,
	}
}

func verifiedIdentity() *oidc.Identity {
	return &oidc.Identity{
		Claims: auth.VerifiedClaims{
			Sub:   "abc123",
			Iss:   "https://cilogon.org",
			Email: "alice@example.edu",
		},
		RawIDToken: "raw.id.token",
	}
}

func callbackRequest(t *testing.T, f *callbackFixture, next string) *http.Request {
	t.Helper()

	issued, err := f.states.Begin(context.Background(), next)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	return httptest.NewRequest("GET",
		"/callback?code=authcode&state="+url.QueryEscape(issued.Encoded), nil)
}

func TestCallbackEstablishesSession(t *testing.T) {
	exchanger := &fakeExchanger{identity: verifiedIdentity()}
	resolver := &fakeResolver{profile: &directory.Profile{
		Username: "alice",
		Email:    "alice@example.edu",
		Sub:      "abc123",
		Iss:      "https://cilogon.org",
	}}
	f := newCallbackFixture(t, exchanger, resolver)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, callbackRequest(t, f, "/target"))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302; body: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/target" {
		t.Errorf("Location = %q, want %q", loc, "/target")
	}

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "cilogon-rp-session" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("no session cookie set")
	}

	session, err := f.sessions.Lookup(context.Background(), sessionCookie.Value)
	if err != nil {
		t.Fatalf("session Lookup failed: %v", err)
	}
	if session.Username != "alice" || session.Sub != "abc123" {
		t.Errorf("unexpected session: %+v", session)
	}

	if _, err := f.store.ByUsername(context.Background(), "alice"); err != nil {
		t.Errorf("user was not provisioned: %v", err)
	}
}

func TestCallbackUnlinkedSubjectRedirectsToLinking(t *testing.T) {
	exchanger := &fakeExchanger{identity: verifiedIdentity()}
	resolver := &fakeResolver{err: directory.ErrNotLinked}
	f := newCallbackFixture(t, exchanger, resolver)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, callbackRequest(t, f, "/target"))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302; body: %s", rec.Code, rec.Body.String())
	}

	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://profiles.example.org/associate?userinfo=") {
		t.Fatalf("Location = %q, want linking URL", loc)
	}

	u, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("invalid linking URL: %v", err)
	}
	payload, err := base64.StdEncoding.DecodeString(u.Query().Get("userinfo"))
	if err != nil {
		t.Fatalf("payload is not decodable base64: %v", err)
	}
	if len(payload) == 0 {
		t.Error("linking payload is empty")
	}

	// The flow must never reach SessionEstablished on this branch.
	for _, c := range rec.Result().Cookies() {
		if c.Name == "cilogon-rp-session" {
			t.Error("session cookie set on LinkNeeded branch")
		}
	}
}

func TestCallbackStateReplayFails(t *testing.T) {
	exchanger := &fakeExchanger{identity: verifiedIdentity()}
	resolver := &fakeResolver{profile: &directory.Profile{
		Username: "alice",
		Email:    "alice@example.edu",
		Sub:      "abc123",
		Iss:      "https://cilogon.org",
	}}
	f := newCallbackFixture(t, exchanger, resolver)

	req := callbackRequest(t, f, "/target")

	first := httptest.NewRecorder()
	f.handler.ServeHTTP(first, req)
	if first.Code != http.StatusFound {
		t.Fatalf("first callback status = %d, want 302", first.Code)
	}

	second := httptest.NewRecorder()
	f.handler.ServeHTTP(second, req.Clone(context.Background()))
	if second.Code != http.StatusInternalServerError {
		t.Errorf("replayed callback status = %d, want 500", second.Code)
	}
	if strings.Contains(second.Body.String(), "state") {
		t.Error("error response leaks internal detail")
	}
}

func TestCallbackUpstreamFailure(t *testing.T) {
	exchanger := &fakeExchanger{identity: verifiedIdentity()}
	resolver := &fakeResolver{err: auth.ErrUpstream}
	f := newCallbackFixture(t, exchanger, resolver)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, callbackRequest(t, f, ""))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestCallbackMissingCode(t *testing.T) {
	f := newCallbackFixture(t, &fakeExchanger{}, &fakeResolver{})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/callback?state=whatever", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCallbackProviderError(t *testing.T) {
	f := newCallbackFixture(t, &fakeExchanger{}, &fakeResolver{})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest("GET",
		"/callback?error=access_denied&error_description=user+cancelled", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "access_denied") {
		t.Error("provider error detail leaked to user")
	}
}
