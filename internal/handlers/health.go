package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/meshresearch/cilogon-rp/internal/cache"
	"github.com/meshresearch/cilogon-rp/internal/config"
)

type HealthHandler struct {
	cfg       *config.Config
	cache     cache.Cache
	logger    *slog.Logger
	startTime time.Time
}

func NewHealthHandler(cfg *config.Config, cache cache.Cache, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:       cfg,
		cache:     cache,
		logger:    logger,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status    string          `json:"status"`
	Uptime    string          `json:"uptime"`
	Cache     CacheHealth     `json:"cache"`
	Directory DirectoryHealth `json:"directory"`
	Provider  string          `json:"provider"`
}

type CacheHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type DirectoryHealth struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:   "healthy",
		Uptime:   time.Since(h.startTime).String(),
		Provider: h.cfg.Provider.Issuer,
	}

	response.Cache.Type = h.cfg.Cache.Type
	if err := h.cache.Set(ctx, "health:check", []byte("ok"), time.Minute); err != nil {
		response.Cache.Status = "error: " + err.Error()
		response.Status = "degraded"
	} else {
		response.Cache.Status = "connected"
		h.cache.Delete(ctx, "health:check")
	}

	response.Directory.URL = h.cfg.Directory.BaseURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.Directory.BaseURL, nil)
	if err == nil {
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
			response.Directory.Status = "reachable"
		} else {
			response.Directory.Status = "unreachable"
			response.Status = "degraded"
		}
	} else {
		response.Directory.Status = "unreachable"
		response.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}
