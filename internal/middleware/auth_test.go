package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/cache"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/internal/user"
)

func sessionFixture(t *testing.T) (*SessionMiddleware, *auth.Session, config.ServerConfig) {
	t.Helper()

	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })

	cfg := config.ServerConfig{
		CookieName:     "cilogon-rp-session",
		CookieSameSite: "lax",
		SessionTTL:     time.Hour,
	}
	sessions := auth.NewSessionManager(c, time.Hour)

	session, err := sessions.Establish(context.Background(), &user.LocalUser{
		ID:       1,
		Username: "alice",
		Email:    "alice@example.edu",
		Role:     "subscriber",
	})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	return NewSessionMiddleware(cfg, sessions, slog.New(slog.NewTextHandler(io.Discard, nil))), session, cfg
}

func TestRequireSessionPasses(t *testing.T) {
	mw, session, cfg := sessionFixture(t)

	var seen *auth.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetSession(r.Context())
	})

	req := httptest.NewRequest("GET", "/me", nil)
	req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: session.ID})

	rec := httptest.NewRecorder()
	mw.RequireSession(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.Username != "alice" {
		t.Errorf("handler did not receive session from context: %+v", seen)
	}
}

func TestRequireSessionRedirects(t *testing.T) {
	mw, _, cfg := sessionFixture(t)

	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no cookie", func(req *http.Request) {}},
		{"unknown session", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: "bogus"})
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			tc.setup(req)

			rec := httptest.NewRecorder()
			mw.RequireSession(okHandler()).ServeHTTP(rec, req)

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != "/login" {
				t.Errorf("Location = %q, want /login", loc)
			}
		})
	}
}
