package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.promptlens.dev"
	DefaultTimeout = 30 * time.Second
)

// ErrInvalidConfig is returned for unusable client configuration.
var ErrInvalidConfig = errors.New("invalid client config")

// Config configures the PromptLens API client.
type Config struct {
	// APIKey authenticates every request. Required.
	APIKey string `yaml:"api_key" json:"api_key"`

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timeout bounds each request, retries excluded. Defaults to DefaultTimeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// ProjectID is sent as the projectId query parameter when set.
	ProjectID string `yaml:"project_id" json:"project_id"`

	// MaxRetries is how many times transport errors and 5xx responses are
	// retried.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// ValidateConfig checks cfg without applying defaults.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: base URL %q must be an absolute URL", ErrInvalidConfig, cfg.BaseURL)
		}
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
