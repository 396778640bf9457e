package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks the whole configuration eagerly at startup, before any
// network call is made. Missing credentials or secrets fail here rather
// than mid-login.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateProvider(); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}

	if err := c.validateDirectory(); err != nil {
		return fmt.Errorf("directory config: %w", err)
	}

	if err := c.validateLogin(); err != nil {
		return fmt.Errorf("login config: %w", err)
	}

	if err := c.validateStore(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if _, err := url.Parse(c.Server.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	sameSite := strings.ToLower(c.Server.CookieSameSite)
	if sameSite != "lax" && sameSite != "strict" && sameSite != "none" {
		return fmt.Errorf("invalid cookie_same_site: %s (must be lax, strict, or none)", c.Server.CookieSameSite)
	}

	if c.Server.SessionTTL < time.Minute {
		return fmt.Errorf("session_ttl must be at least 1 minute")
	}

	return nil
}

func (c *Config) validateProvider() error {
	if _, err := url.Parse(c.Provider.Issuer); err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	if c.Provider.ClientID == "" || c.Provider.ClientSecret == "" {
		return fmt.Errorf("client credentials not configured; set CILOGON_CLIENT_ID and CILOGON_CLIENT_SECRET")
	}

	if !strings.HasPrefix(c.Provider.RedirectPath, "/") {
		return fmt.Errorf("redirect_path must start with /: %s", c.Provider.RedirectPath)
	}

	hasOpenID := false
	for _, scope := range c.Provider.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("'openid' scope is required")
	}

	return nil
}

func (c *Config) validateDirectory() error {
	if c.Directory.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if _, err := url.Parse(c.Directory.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	if c.Directory.BearerToken == "" {
		return fmt.Errorf("bearer_token is required; set PROFILES_API_BEARER_TOKEN")
	}

	if c.Directory.LinkingSecret == "" {
		return fmt.Errorf("linking_secret is required; set PROFILES_LINKING_SECRET")
	}

	if c.Directory.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogin() error {
	if c.Login.DefaultRole == "" {
		return fmt.Errorf("default_role is required")
	}

	if c.Login.StateTTL < time.Minute {
		return fmt.Errorf("state_ttl must be at least 1 minute")
	}

	if c.Login.MaxUsernameProbes < 1 {
		return fmt.Errorf("max_username_probes must be at least 1")
	}

	return nil
}

func (c *Config) validateStore() error {
	if c.Store.Type != "sqlite" && c.Store.Type != "memory" {
		return fmt.Errorf("invalid type: %s (must be sqlite or memory)", c.Store.Type)
	}

	if c.Store.Type == "sqlite" {
		if c.Store.SQLite == nil || c.Store.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required when type is sqlite")
		}
	}

	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("invalid type: %s (must be memory or redis)", c.Cache.Type)
	}

	if c.Cache.Type == "redis" {
		if c.Cache.Redis == nil {
			return fmt.Errorf("redis config is required when type is redis")
		}
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
