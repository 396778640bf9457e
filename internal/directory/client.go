// Package directory talks to the external profile directory that maps
// CILogon subjects onto account profiles.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
)

// ErrNotLinked marks the expected first-login branch: the directory
// answered successfully but holds no profile for the subject. Callers
// redirect to the linking flow rather than failing the request.
var ErrNotLinked = errors.New("no directory profile for subject")

// Profile is the directory's account record for one subject.
type Profile struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Name      string `json:"name,omitempty"`
	Sub       string `json:"sub"`
	Iss       string `json:"iss"`
	EPPN      string `json:"eppn,omitempty"`
	EPTID     string `json:"eptid,omitempty"`
}

type subsResponse struct {
	Data []Profile `json:"data"`
}

type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
}

func NewClient(cfg config.DirectoryConfig) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		bearerToken: cfg.BearerToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Resolve looks up the profile for sub. The subject is the sole lookup
// key; email is not stable or unique across identities. Directory errors
// are never retried here, since a retry that then succeeded could fork a
// duplicate linking attempt.
func (c *Client) Resolve(ctx context.Context, sub string) (*Profile, error) {
	if sub == "" {
		return nil, fmt.Errorf("%w: cannot resolve empty subject", auth.ErrConfiguration)
	}

	endpoint := c.baseURL + "/api/v1/subs/?sub=" + url.QueryEscape(sub)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: directory request failed: %v", auth.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: directory returned status %d", auth.ErrUpstream, resp.StatusCode)
	}

	var body subsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: invalid directory response: %v", auth.ErrUpstream, err)
	}

	if len(body.Data) == 0 {
		return nil, ErrNotLinked
	}

	return &body.Data[0], nil
}
