package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/haasonsaas/promptlens/internal/client"
	"github.com/haasonsaas/promptlens/internal/config"
	"github.com/haasonsaas/promptlens/internal/observability"
)

const (
	configEnv         = "PROMPTLENS_CONFIG"
	defaultConfigName = "promptlens.yaml"
)

// resolveConfigPath picks the explicit path, then $PROMPTLENS_CONFIG, then
// promptlens.yaml in the working directory.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(configEnv)); p != "" {
		return p
	}
	return defaultConfigName
}

// loadConfig loads the resolved config. A missing default file yields the
// built-in defaults so commands work without any config on disk.
func loadConfig(path string) (*config.Config, error) {
	resolved := resolveConfigPath(path)
	if _, err := os.Stat(resolved); errors.Is(err, fs.ErrNotExist) && strings.TrimSpace(path) == "" && os.Getenv(configEnv) == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the command logger and installs it as the slog default.
func newLogger(cfg *config.Config) *observability.Logger {
	logCfg := cfg.Logging
	if debug {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger.Slog())
	return logger
}

// newClient creates a REST client, letting flags override the config.
func newClient(cfg *config.Config, logger *observability.Logger, baseURL, apiKey string) (*client.Client, error) {
	cc := cfg.ClientConfig()
	if strings.TrimSpace(baseURL) != "" {
		cc.BaseURL = baseURL
	}
	if strings.TrimSpace(apiKey) != "" {
		cc.APIKey = apiKey
	}
	return client.New(cc, client.WithLogger(logger))
}
