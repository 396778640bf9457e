package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/pkg/security"
)

// CSRFMiddleware validates mutating requests against the token bound to
// the caller's session.
type CSRFMiddleware struct {
	cfg      config.ServerConfig
	sessions *auth.SessionManager
	logger   *slog.Logger
}

func NewCSRFMiddleware(cfg config.ServerConfig, sessions *auth.SessionManager, logger *slog.Logger) *CSRFMiddleware {
	return &CSRFMiddleware{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
	}
}

func (cm *CSRFMiddleware) ValidateCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" || r.Method == "DELETE" {
			token := r.FormValue("csrf_token")
			if token == "" {
				token = r.Header.Get("X-CSRF-Token")
			}

			if token == "" {
				cm.logger.Warn("missing CSRF token", "path", r.URL.Path)
				http.Error(w, "Missing CSRF token", http.StatusForbidden)
				return
			}

			cookie, err := security.GetSessionCookie(r, cm.cfg.CookieName)
			if err != nil {
				cm.logger.Warn("CSRF check without session", "path", r.URL.Path)
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}

			session, err := cm.sessions.Lookup(r.Context(), cookie.Value)
			if err != nil {
				cm.logger.Warn("CSRF check with unknown session", "path", r.URL.Path)
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(session.CSRFToken)) != 1 {
				cm.logger.Warn("invalid CSRF token", "path", r.URL.Path)
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
