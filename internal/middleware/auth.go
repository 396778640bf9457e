package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/pkg/security"
)

type contextKey string

const SessionContextKey contextKey = "session"

// SessionMiddleware guards handlers that require an established session.
// Requests without one are sent to the login flow.
type SessionMiddleware struct {
	cfg      config.ServerConfig
	sessions *auth.SessionManager
	logger   *slog.Logger
}

func NewSessionMiddleware(cfg config.ServerConfig, sessions *auth.SessionManager, logger *slog.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
	}
}

func (sm *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := security.GetSessionCookie(r, sm.cfg.CookieName)
		if err != nil {
			sm.logger.Debug("no session cookie", "path", r.URL.Path)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		session, err := sm.sessions.Lookup(r.Context(), cookie.Value)
		if err != nil {
			sm.logger.Debug("session lookup failed", "error", err)
			http.SetCookie(w, security.ClearSessionCookie(sm.cfg))
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetSession(ctx context.Context) (*auth.Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*auth.Session)
	return session, ok
}
