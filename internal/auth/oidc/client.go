// Package oidc wraps the CILogon authorization-code exchange. Discovery,
// token exchange, and ID-token verification are delegated to
// coreos/go-oidc; this package only maps the result onto the service's
// claim types.
package oidc

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
)

// Identity is the outcome of a successful code exchange: verified claims
// plus the raw ID token, kept only for the account-linking hand-off.
type Identity struct {
	Claims     auth.VerifiedClaims
	RawIDToken string
}

type Client struct {
	provider     *gooidc.Provider
	oauth2Config oauth2.Config
	verifier     *gooidc.IDTokenVerifier
}

// NewClient runs OIDC discovery against the configured issuer and prepares
// the oauth2 exchange. redirectURL is the absolute callback URL.
func NewClient(ctx context.Context, cfg config.ProviderConfig, redirectURL string) (*Client, error) {
	provider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	oauth2Config := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       cfg.Scopes,
	}

	verifier := provider.Verifier(&gooidc.Config{
		ClientID: cfg.ClientID,
	})

	return &Client{
		provider:     provider,
		oauth2Config: oauth2Config,
		verifier:     verifier,
	}, nil
}

// AuthCodeURL builds the provider redirect for one login attempt, binding
// the opaque state and a PKCE challenge derived from codeVerifier.
func (c *Client) AuthCodeURL(state, codeVerifier string) string {
	challenge := sha256.Sum256([]byte(codeVerifier))
	return c.oauth2Config.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", base64.RawURLEncoding.EncodeToString(challenge[:])),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades the authorization code for tokens and verifies the ID
// token. Claims come exclusively from the verified token.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*Identity, error) {
	token, err := c.oauth2Config.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", auth.ErrUpstream, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: no id_token in token response", auth.ErrUpstream)
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: ID token verification failed: %v", auth.ErrUpstream, err)
	}

	var claims auth.VerifiedClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", auth.ErrUpstream, err)
	}

	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: ID token carries no subject", auth.ErrUpstream)
	}

	return &Identity{
		Claims:     claims,
		RawIDToken: rawIDToken,
	}, nil
}
