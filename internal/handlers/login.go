package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/pkg/security"
)

// authURLBuilder is the slice of the OIDC client the login handler needs.
type authURLBuilder interface {
	AuthCodeURL(state, codeVerifier string) string
}

// LoginHandler starts a login attempt: it issues fresh AuthState and
// redirects the browser to the identity provider.
type LoginHandler struct {
	cfg      config.ServerConfig
	states   *auth.StateManager
	sessions *auth.SessionManager
	oidc     authURLBuilder
	logger   *slog.Logger
}

func NewLoginHandler(cfg config.ServerConfig, states *auth.StateManager, sessions *auth.SessionManager, oidc authURLBuilder, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		cfg:      cfg,
		states:   states,
		sessions: sessions,
		oidc:     oidc,
		logger:   logger,
	}
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	next := sanitizeNext(r.URL.Query().Get("next"))

	// Already signed in: skip the provider round trip.
	if cookie, err := security.GetSessionCookie(r, h.cfg.CookieName); err == nil {
		if _, err := h.sessions.Lookup(r.Context(), cookie.Value); err == nil {
			if next == "" {
				next = "/"
			}
			http.Redirect(w, r, next, http.StatusFound)
			return
		}
	}

	issued, err := h.states.Begin(r.Context(), next)
	if err != nil {
		writeLoginError(w, h.logger, "state", err)
		return
	}

	h.logger.Info("starting authentication redirect")
	http.Redirect(w, r, h.oidc.AuthCodeURL(issued.Encoded, issued.CodeVerifier), http.StatusFound)
}

// sanitizeNext only accepts local paths, so the post-login redirect can
// never leave this site. Anything else falls back to the configured default.
func sanitizeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	return next
}
