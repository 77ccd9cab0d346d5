package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/promptlens/internal/client"
	"github.com/haasonsaas/promptlens/internal/collector"
	"github.com/haasonsaas/promptlens/internal/experiments"
	"github.com/haasonsaas/promptlens/internal/metrics"
	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/pkg/models"
)

// APIKeyEnv overrides api_key when set.
const APIKeyEnv = "PROMPTLENS_API_KEY"

// Config is the main configuration structure for PromptLens.
type Config struct {
	Version int `yaml:"version"`

	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	ProjectID  string        `yaml:"project_id"`
	MaxRetries int           `yaml:"max_retries"`

	Experiments []models.ExperimentConfig `yaml:"experiments"`
	Metrics     MetricsConfig             `yaml:"metrics"`
	Collector   collector.Config          `yaml:"collector"`
	Providers   ProvidersConfig           `yaml:"providers"`
	Logging     observability.LogConfig   `yaml:"logging"`
	Tracing     observability.TraceConfig `yaml:"tracing"`
}

// MetricsConfig controls client-side metric batching and delivery.
type MetricsConfig struct {
	// Endpoint is the collector base URL. Defaults to base_url.
	Endpoint      string        `yaml:"endpoint"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Enabled       *bool         `yaml:"enabled"`
	MaxBuffer     int           `yaml:"max_buffer"`
}

// ProvidersConfig holds credentials for the LLM providers used by `promptlens chat`.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
}

type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	MaxTokens    int64  `yaml:"max_tokens"`
}

// ConfigValidationError lists every problem found in a configuration.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "config invalid"
	}
	return "config invalid: " + strings.Join(e.Issues, "; ")
}

// Load reads, merges, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		cfg.APIKey = key
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = client.DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = client.DefaultTimeout
	}
	if strings.TrimSpace(cfg.Metrics.Endpoint) == "" {
		cfg.Metrics.Endpoint = cfg.BaseURL
	}
	if cfg.Metrics.BatchSize == 0 {
		cfg.Metrics.BatchSize = metrics.DefaultBatchSize
	}
	if cfg.Metrics.FlushInterval == 0 {
		cfg.Metrics.FlushInterval = metrics.DefaultFlushInterval
	}
	for i := range cfg.Experiments {
		cfg.Experiments[i].ID = strings.TrimSpace(cfg.Experiments[i].ID)
		cfg.Experiments[i].Distribution = cfg.Experiments[i].Distribution.Normalize()
	}
	cfg.Collector = cfg.Collector.WithDefaults()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "promptlens"
	}
	if cfg.Providers.OpenAI.MaxTokens == 0 {
		cfg.Providers.OpenAI.MaxTokens = 1024
	}
	if cfg.Providers.Anthropic.MaxTokens == 0 {
		cfg.Providers.Anthropic.MaxTokens = 1024
	}
}

// Validate checks the configuration after defaults are applied. The API key is
// not required here; client.New enforces it for commands that talk to the API.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigValidationError{Issues: []string{"config is nil"}}
	}
	if err := checkVersion(c.Version); err != nil {
		return err
	}

	var issues []string
	if !absoluteURL(c.BaseURL) {
		issues = append(issues, fmt.Sprintf("base_url %q must be an absolute URL", c.BaseURL))
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be positive")
	}
	if c.MaxRetries < 0 {
		issues = append(issues, "max_retries must be >= 0")
	}
	if err := c.ExperimentsConfig().Validate(); err != nil {
		issues = append(issues, "experiments: "+err.Error())
	}
	if !absoluteURL(c.Metrics.Endpoint) {
		issues = append(issues, fmt.Sprintf("metrics.endpoint %q must be an absolute URL", c.Metrics.Endpoint))
	}
	if c.Metrics.BatchSize < 0 {
		issues = append(issues, "metrics.batch_size must be >= 0")
	}
	if c.Metrics.FlushInterval < 0 {
		issues = append(issues, "metrics.flush_interval must be >= 0")
	}
	if c.Metrics.MaxBuffer < 0 {
		issues = append(issues, "metrics.max_buffer must be >= 0")
	}
	issues = append(issues, c.Collector.Validate()...)
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q is not one of json, text", c.Logging.Format))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

// ClientConfig returns the REST client settings.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		ProjectID:  c.ProjectID,
		MaxRetries: c.MaxRetries,
	}
}

// ExperimentsConfig returns the experiment set for the interceptor.
func (c *Config) ExperimentsConfig() experiments.Config {
	return experiments.Config{Experiments: c.Experiments}
}

// QueueConfig returns the metric queue settings.
func (c *Config) QueueConfig() metrics.Config {
	return metrics.Config{
		BatchSize:     c.Metrics.BatchSize,
		FlushInterval: c.Metrics.FlushInterval,
		Enabled:       c.Metrics.Enabled,
		MaxBuffer:     c.Metrics.MaxBuffer,
	}
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
