package server

import (
	"net/http"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/directory"
	"github.com/meshresearch/cilogon-rp/internal/handlers"
	"github.com/meshresearch/cilogon-rp/internal/linking"
	"github.com/meshresearch/cilogon-rp/internal/middleware"
	"github.com/meshresearch/cilogon-rp/internal/provision"
)

func (s *Server) setupRoutes() http.Handler {
	states := auth.NewStateManager(s.cache, s.cfg.Login.DefaultRedirect, s.cfg.Login.StateTTL)
	sessions := auth.NewSessionManager(s.cache, s.cfg.Server.SessionTTL)
	resolver := directory.NewClient(s.cfg.Directory)
	linker := linking.New(s.cfg.Directory)
	provisioner := provision.New(s.store, s.cfg.Login, s.logger)

	sessionMW := middleware.NewSessionMiddleware(s.cfg.Server, sessions, s.logger)
	csrfMW := middleware.NewCSRFMiddleware(s.cfg.Server, sessions, s.logger)

	loginHandler := handlers.NewLoginHandler(s.cfg.Server, states, sessions, s.oidc, s.logger)
	callbackHandler := handlers.NewCallbackHandler(
		s.cfg.Server, states, s.oidc, resolver, linker, provisioner, sessions, s.logger)
	logoutHandler := handlers.NewLogoutHandler(s.cfg.Server, sessions, s.logger)
	meHandler := handlers.NewMeHandler(s.logger)
	healthHandler := handlers.NewHealthHandler(s.cfg, s.cache, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/login", loginHandler.ServeHTTP)
	mux.HandleFunc(s.cfg.Provider.RedirectPath, callbackHandler.ServeHTTP)
	mux.Handle("/logout", csrfMW.ValidateCSRF(logoutHandler))
	mux.Handle("/me", sessionMW.RequireSession(meHandler))
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	return middleware.Recovery(s.logger)(
		middleware.Logging(s.logger)(
			addSecurityHeaders(mux),
		),
	)
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
