package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/meshresearch/cilogon-rp/internal/auth/oidc"
	"github.com/meshresearch/cilogon-rp/internal/cache"
	"github.com/meshresearch/cilogon-rp/internal/config"
	"github.com/meshresearch/cilogon-rp/internal/server"
	"github.com/meshresearch/cilogon-rp/internal/user"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "/etc/cilogon-rp/config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cilogon-rp v%s\n", version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting cilogon-rp", "version", version)

	cacheInstance, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	store, err := user.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	logger.Info("user store initialized", "type", cfg.Store.Type)

	redirectURL := strings.TrimSuffix(cfg.Server.BaseURL, "/") + cfg.Provider.RedirectPath
	oidcClient, err := oidc.NewClient(context.Background(), cfg.Provider, redirectURL)
	if err != nil {
		return fmt.Errorf("failed to create OIDC client: %w", err)
	}
	logger.Info("provider initialized", "issuer", cfg.Provider.Issuer)

	return server.New(cfg, cacheInstance, store, oidcClient, logger).Start()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
