// Package provision materializes directory profiles as local accounts.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/internal/directory"
	"github.com/meshresearch/cilogon-rp/internal/user"
	"github.com/meshresearch/cilogon-rp/pkg/security"
)

type Provisioner struct {
	store  user.Store
	cfg    config.LoginConfig
	logger *slog.Logger
}

func New(store user.Store, cfg config.LoginConfig, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Provision finds or creates the local account for a resolved profile and
// synchronizes identity metadata onto it. Calling it again with the same
// profile returns the same account; it never creates duplicates for a
// subject the store already knows, even when that account carries a
// suffixed username from an earlier collision.
func (p *Provisioner) Provision(ctx context.Context, profile *directory.Profile) (*user.LocalUser, error) {
	// A subject the store already knows keeps its account regardless of
	// what username the directory reports today.
	if known, err := p.store.BySub(ctx, profile.Sub); err == nil {
		if err := p.store.UpdateIdentity(ctx, known.ID, identityOf(profile)); err != nil {
			return nil, fmt.Errorf("%w: failed to sync identity metadata: %v", auth.ErrProvisioning, err)
		}
		return p.store.ByID(ctx, known.ID)
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("%w: subject lookup failed: %v", auth.ErrProvisioning, err)
	}

	base := p.baseUsername(profile)

	existing, err := p.store.ByUsername(ctx, base)
	switch {
	case err == nil:
		if claimedByOther(existing, profile.Sub) {
			// The username belongs to an account linked to a different
			// subject; fall through and create a suffixed account.
			p.logger.Info("username already linked to another subject",
				"username", base,
			)
		} else {
			if err := p.store.UpdateIdentity(ctx, existing.ID, identityOf(profile)); err != nil {
				return nil, fmt.Errorf("%w: failed to sync identity metadata: %v", auth.ErrProvisioning, err)
			}
			p.logger.Info("updated existing user", "username", existing.Username, "user_id", existing.ID)
			return p.store.ByID(ctx, existing.ID)
		}
	case !errors.Is(err, user.ErrNotFound):
		return nil, fmt.Errorf("%w: user lookup failed: %v", auth.ErrProvisioning, err)
	}

	username, err := p.freeUsername(ctx, base)
	if err != nil {
		return nil, err
	}

	// The account never logs in with this password; sessions are the only
	// login path. It exists so the record always has a non-empty credential.
	password, err := security.GenerateRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName := profile.Name
	if displayName == "" {
		displayName = profile.Email
	}

	created, err := p.store.Create(ctx, &user.LocalUser{
		Username:     username,
		Email:        profile.Email,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		DisplayName:  displayName,
		Role:         p.cfg.DefaultRole,
		PasswordHash: string(hash),
		Sub:          profile.Sub,
		Iss:          profile.Iss,
		EPPN:         profile.EPPN,
		EPTID:        profile.EPTID,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			return nil, fmt.Errorf("%w: store rejected new account: %v", auth.ErrProvisioning, err)
		}
		return nil, fmt.Errorf("%w: failed to create user: %v", auth.ErrProvisioning, err)
	}

	p.logger.Info("created new user",
		"username", created.Username,
		"user_id", created.ID,
		"role", created.Role,
	)

	return created, nil
}

func (p *Provisioner) baseUsername(profile *directory.Profile) string {
	if profile.Username != "" {
		return profile.Username
	}
	if local, _, ok := strings.Cut(profile.Email, "@"); ok && local != "" {
		return local
	}
	return p.cfg.UsernameFallback
}

// freeUsername probes base, base_1, ... base_N for a free name. The probe
// is bounded; past the bound a single random suffix guarantees termination.
func (p *Provisioner) freeUsername(ctx context.Context, base string) (string, error) {
	exists, err := p.store.UsernameExists(ctx, base)
	if err != nil {
		return "", fmt.Errorf("%w: username check failed: %v", auth.ErrProvisioning, err)
	}
	if !exists {
		return base, nil
	}

	for i := 1; i <= p.cfg.MaxUsernameProbes; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		exists, err := p.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("%w: username check failed: %v", auth.ErrProvisioning, err)
		}
		if !exists {
			return candidate, nil
		}
	}

	suffix, err := security.GenerateHexToken(3)
	if err != nil {
		return "", fmt.Errorf("failed to generate username suffix: %w", err)
	}
	candidate := base + "_" + suffix
	exists, err = p.store.UsernameExists(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("%w: username check failed: %v", auth.ErrProvisioning, err)
	}
	if exists {
		return "", fmt.Errorf("%w: could not find a free username for %q", auth.ErrProvisioning, base)
	}

	return candidate, nil
}

// claimedByOther reports whether the account is already linked to a
// different subject, in which case the profile must get its own account
// instead of overwriting someone else's identity metadata.
func claimedByOther(u *user.LocalUser, sub string) bool {
	return u.Sub != "" && u.Sub != sub
}

func identityOf(profile *directory.Profile) user.Identity {
	return user.Identity{
		Sub:   profile.Sub,
		Iss:   profile.Iss,
		EPPN:  profile.EPPN,
		EPTID: profile.EPTID,
	}
}
