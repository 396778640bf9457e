package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/meshresearch/cilogon-rp/internal/middleware"
)

// MeHandler reports the authenticated user. It runs behind the session
// middleware; the CSRF token is included so clients can call /logout.
type MeHandler struct {
	logger *slog.Logger
}

func NewMeHandler(logger *slog.Logger) *MeHandler {
	return &MeHandler{logger: logger}
}

type MeResponse struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Sub       string `json:"sub"`
	Iss       string `json:"iss"`
	CSRFToken string `json:"csrf_token"`
}

func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MeResponse{
		Username:  session.Username,
		Email:     session.Email,
		Role:      session.Role,
		Sub:       session.Sub,
		Iss:       session.Iss,
		CSRFToken: session.CSRFToken,
	})
}
