package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Directory DirectoryConfig `yaml:"directory"`
	Login     LoginConfig     `yaml:"login"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	BaseURL        string        `yaml:"base_url"`
	CookieName     string        `yaml:"cookie_name"`
	CookieDomain   string        `yaml:"cookie_domain"`
	CookieSecure   bool          `yaml:"cookie_secure"`
	CookieHTTPOnly bool          `yaml:"cookie_http_only"`
	CookieSameSite string        `yaml:"cookie_same_site"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
}

// ProviderConfig describes the CILogon OIDC client registration.
type ProviderConfig struct {
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectPath string   `yaml:"redirect_path"`
	Scopes       []string `yaml:"scopes"`
}

// DirectoryConfig describes the external profile directory that maps
// subjects to account profiles, and the linking service hosted alongside it.
type DirectoryConfig struct {
	BaseURL       string        `yaml:"base_url"`
	BearerToken   string        `yaml:"bearer_token"`
	LinkingSecret string        `yaml:"linking_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

type LoginConfig struct {
	DefaultRedirect   string        `yaml:"default_redirect"`
	DefaultRole       string        `yaml:"default_role"`
	StateTTL          time.Duration `yaml:"state_ttl"`
	UsernameFallback  string        `yaml:"username_fallback"`
	MaxUsernameProbes int           `yaml:"max_username_probes"`
}

type StoreConfig struct {
	Type   string        `yaml:"type"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type CacheConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.setDefaults()
	cfg.loadSecretsFromEnv()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.CookieName == "" {
		c.Server.CookieName = "cilogon-rp-session"
	}
	if !c.Server.CookieHTTPOnly {
		c.Server.CookieHTTPOnly = true
	}
	if c.Server.CookieSameSite == "" {
		c.Server.CookieSameSite = "lax"
	}
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = 24 * time.Hour
	}

	if c.Provider.Issuer == "" {
		c.Provider.Issuer = "https://cilogon.org"
	}
	if c.Provider.RedirectPath == "" {
		c.Provider.RedirectPath = "/callback"
	}
	if len(c.Provider.Scopes) == 0 {
		c.Provider.Scopes = []string{"openid", "email", "profile"}
	}

	if c.Directory.Timeout == 0 {
		c.Directory.Timeout = 10 * time.Second
	}

	if c.Login.DefaultRedirect == "" {
		c.Login.DefaultRedirect = "/"
	}
	if c.Login.DefaultRole == "" {
		c.Login.DefaultRole = "subscriber"
	}
	if c.Login.StateTTL == 0 {
		c.Login.StateTTL = 5 * time.Minute
	}
	if c.Login.UsernameFallback == "" {
		c.Login.UsernameFallback = "cilogon_user"
	}
	if c.Login.MaxUsernameProbes == 0 {
		c.Login.MaxUsernameProbes = 100
	}

	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	if c.Store.Type == "sqlite" && c.Store.SQLite == nil {
		c.Store.SQLite = &SQLiteConfig{Path: "cilogon-rp.db"}
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if c.Cache.Redis.PoolSize == 0 {
			c.Cache.Redis.PoolSize = 10
		}
		if c.Cache.Redis.MaxRetries == 0 {
			c.Cache.Redis.MaxRetries = 3
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

func (c *Config) loadSecretsFromEnv() {
	if v := os.Getenv("CILOGON_CLIENT_ID"); v != "" {
		c.Provider.ClientID = v
	}
	if v := os.Getenv("CILOGON_CLIENT_SECRET"); v != "" {
		c.Provider.ClientSecret = v
	}
	if v := os.Getenv("PROFILES_API_BEARER_TOKEN"); v != "" {
		c.Directory.BearerToken = v
	}
	if v := os.Getenv("PROFILES_LINKING_SECRET"); v != "" {
		c.Directory.LinkingSecret = v
	}
	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if v := os.Getenv("REDIS_PASSWORD"); v != "" {
			c.Cache.Redis.Password = v
		}
	}
}
