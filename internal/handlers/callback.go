package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/auth/oidc"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/internal/directory"
	"github.com/meshresearch/cilogon-rp/internal/user"
	"github.com/meshresearch/cilogon-rp/pkg/security"
)

// Narrow views of the collaborators, so tests can substitute fakes for the
// provider exchange and the directory without a network.
type identityExchanger interface {
	Exchange(ctx context.Context, code, codeVerifier string) (*oidc.Identity, error)
}

type profileResolver interface {
	Resolve(ctx context.Context, sub string) (*directory.Profile, error)
}

type accountLinker interface {
	RedirectURL(rawIDToken string) (string, error)
}

type userProvisioner interface {
	Provision(ctx context.Context, profile *directory.Profile) (*user.LocalUser, error)
}

// CallbackHandler completes a login attempt: it consumes the echoed state,
// exchanges the code, resolves the subject against the directory, and
// either finalizes a session or hands the browser to the linking service.
type CallbackHandler struct {
	cfg         config.ServerConfig
	states      *auth.StateManager
	exchanger   identityExchanger
	resolver    profileResolver
	linker      accountLinker
	provisioner userProvisioner
	sessions    *auth.SessionManager
	logger      *slog.Logger
}

func NewCallbackHandler(
	cfg config.ServerConfig,
	states *auth.StateManager,
	exchanger identityExchanger,
	resolver profileResolver,
	linker accountLinker,
	provisioner userProvisioner,
	sessions *auth.SessionManager,
	logger *slog.Logger,
) *CallbackHandler {
	return &CallbackHandler{
		cfg:         cfg,
		states:      states,
		exchanger:   exchanger,
		resolver:    resolver,
		linker:      linker,
		provisioner: provisioner,
		sessions:    sessions,
		logger:      logger,
	}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		h.logger.Error("provider returned error",
			"code", errCode,
			"description", query.Get("error_description"),
		)
		http.Error(w, "Authentication failed. Please try signing in again.", http.StatusUnauthorized)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.logger.Error("callback missing code parameter")
		http.Error(w, "Authentication failed. Please try signing in again.", http.StatusBadRequest)
		return
	}

	// Single-use: a replayed state fails here and the login starts over.
	issued, err := h.states.Consume(r.Context(), query.Get("state"))
	if err != nil {
		writeLoginError(w, h.logger, "state", err)
		return
	}

	identity, err := h.exchanger.Exchange(r.Context(), code, issued.CodeVerifier)
	if err != nil {
		writeLoginError(w, h.logger, "exchange", err)
		return
	}

	profile, err := h.resolver.Resolve(r.Context(), identity.Claims.Sub)
	if err != nil {
		if errors.Is(err, directory.ErrNotLinked) {
			h.redirectToLinking(w, r, identity)
			return
		}
		writeLoginError(w, h.logger, "resolve", err)
		return
	}

	localUser, err := h.provisioner.Provision(r.Context(), profile)
	if err != nil {
		writeLoginError(w, h.logger, "provision", err)
		return
	}

	// Finalize: only reached after a successful provision.
	session, err := h.sessions.Establish(r.Context(), localUser)
	if err != nil {
		writeLoginError(w, h.logger, "session", err)
		return
	}

	http.SetCookie(w, security.CreateSessionCookie(h.cfg, session.ID, h.cfg.SessionTTL))

	h.logger.Info("authentication successful",
		"username", localUser.Username,
		"user_id", localUser.ID,
		"sub", identity.Claims.Sub,
	)

	http.Redirect(w, r, issued.CallbackNext, http.StatusFound)
}

// redirectToLinking sends an unresolved identity to the external linking
// service. The request ends here; the user retries login after linking.
func (h *CallbackHandler) redirectToLinking(w http.ResponseWriter, r *http.Request, identity *oidc.Identity) {
	linkURL, err := h.linker.RedirectURL(identity.RawIDToken)
	if err != nil {
		writeLoginError(w, h.logger, "linking", err)
		return
	}

	h.logger.Info("subject not linked, redirecting to linking service",
		"sub", identity.Claims.Sub,
	)

	http.Redirect(w, r, linkURL, http.StatusFound)
}
