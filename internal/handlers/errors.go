package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/meshresearch/cilogon-rp/internal/auth"
)

// writeLoginError maps flow errors onto generic user-facing responses.
// The full error goes to the operator log only; users never see internal
// detail, upstream bodies, or secrets.
func writeLoginError(w http.ResponseWriter, logger *slog.Logger, stage string, err error) {
	switch {
	case errors.Is(err, auth.ErrConfiguration):
		logger.Error("login aborted: configuration error", "stage", stage, "error", err)
		http.Error(w, "Sign-in is temporarily unavailable.", http.StatusInternalServerError)
	case errors.Is(err, auth.ErrUpstream):
		logger.Error("login aborted: upstream failure", "stage", stage, "error", err)
		http.Error(w, "Authentication failed. Please try signing in again.", http.StatusBadGateway)
	case errors.Is(err, auth.ErrProvisioning):
		logger.Error("login aborted: provisioning failure", "stage", stage, "error", err)
		http.Error(w, "We could not sign you in with this account.", http.StatusInternalServerError)
	default:
		logger.Error("login aborted", "stage", stage, "error", err)
		http.Error(w, "Sign-in failed.", http.StatusInternalServerError)
	}
}
