package handlers

import (
	"log/slog"
	"net/http"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/pkg/security"
)

type LogoutHandler struct {
	cfg      config.ServerConfig
	sessions *auth.SessionManager
	logger   *slog.Logger
}

func NewLogoutHandler(cfg config.ServerConfig, sessions *auth.SessionManager, logger *slog.Logger) *LogoutHandler {
	return &LogoutHandler{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if cookie, err := security.GetSessionCookie(r, h.cfg.CookieName); err == nil {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("failed to destroy session", "error", err)
		}
	}

	http.SetCookie(w, security.ClearSessionCookie(h.cfg))

	h.logger.Info("user logged out")

	http.Redirect(w, r, "/login", http.StatusFound)
}
