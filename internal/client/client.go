// Package client talks to the PromptLens REST API: prompt tests, A/B tests,
// prompt logging and metric queries against a collector.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/promptlens/internal/backoff"
	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/internal/version"
	"github.com/haasonsaas/promptlens/pkg/models"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("PromptLens API error (%d): %s", e.StatusCode, e.Body)
}

// Message returns the response body, which carries the server's explanation.
func (e *APIError) Message() string {
	return e.Body
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client is a PromptLens API client. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      backoff.Policy
	logger     *observability.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Per-request timeouts still
// come from Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *observability.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryPolicy sets the delays between retries. Attempts still come from
// Config.MaxRetries.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// New validates cfg and creates a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{},
		retry:      backoff.DefaultPolicy(),
		logger:     observability.NewDiscardLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.MaxAttempts = c.cfg.MaxRetries + 1
	return c, nil
}

// BaseURL returns the effective API base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

type testRequest struct {
	Prompt models.PromptTemplate   `json:"prompt"`
	Config models.PromptTestConfig `json:"config"`
}

type testResponse struct {
	Passed             bool                       `json:"passed"`
	AIResponse         any                        `json:"aiResponse"`
	ExpectationResults []models.ExpectationResult `json:"expectationResults"`
}

// TestPrompt runs a prompt test remotely. Failures are reported in the
// result, never as an error.
func (c *Client) TestPrompt(ctx context.Context, prompt models.PromptTemplate, cfg models.PromptTestConfig) models.PromptTestResult {
	start := c.now()
	var resp testResponse
	err := c.do(ctx, http.MethodPost, "/test", nil, testRequest{Prompt: prompt, Config: cfg}, &resp)
	elapsed := c.now().Sub(start).Milliseconds()

	if err != nil {
		c.logger.Warn(ctx, "prompt test failed", "test", cfg.Name, "error", err)
		return models.PromptTestResult{
			Passed:          false,
			ExecutionTimeMs: elapsed,
			Error:           err.Error(),
		}
	}
	return models.PromptTestResult{
		Passed:             resp.Passed,
		ExecutionTimeMs:    elapsed,
		Response:           resp.AIResponse,
		ExpectationResults: resp.ExpectationResults,
	}
}

// RunABTest submits an A/B test and returns the service's verdict as decoded
// JSON.
func (c *Client) RunABTest(ctx context.Context, cfg models.ABTestConfig) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/ab-test", nil, map[string]any{"config": cfg}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type logRequest struct {
	Prompt    models.PromptTemplate `json:"prompt"`
	Response  any                   `json:"response"`
	Metadata  map[string]any        `json:"metadata,omitempty"`
	Timestamp string                `json:"timestamp"`
}

// LogPrompt records a prompt and its response for monitoring. prompt is
// either a string or a models.PromptTemplate.
func (c *Client) LogPrompt(ctx context.Context, prompt any, response any, metadata map[string]any) error {
	var tmpl models.PromptTemplate
	switch p := prompt.(type) {
	case string:
		tmpl = models.PromptTemplate{Content: p}
	case models.PromptTemplate:
		tmpl = p
	case *models.PromptTemplate:
		if p == nil {
			return fmt.Errorf("log prompt: nil template")
		}
		tmpl = *p
	default:
		return fmt.Errorf("log prompt: unsupported prompt type %T", prompt)
	}
	return c.do(ctx, http.MethodPost, "/log", nil, logRequest{
		Prompt:    tmpl,
		Response:  response,
		Metadata:  metadata,
		Timestamp: c.now().UTC().Format(time.RFC3339Nano),
	}, nil)
}

// MetricsQuery selects stored metrics. Exactly one of ExperimentID,
// PromptHash or the Start/End pair is used, in that order.
type MetricsQuery struct {
	ExperimentID string
	PromptHash   string
	Start        time.Time
	End          time.Time
}

func (q MetricsQuery) values() (url.Values, error) {
	v := url.Values{}
	switch {
	case q.ExperimentID != "":
		v.Set("experimentId", q.ExperimentID)
	case q.PromptHash != "":
		v.Set("promptHash", q.PromptHash)
	case !q.Start.IsZero() && !q.End.IsZero():
		v.Set("startTime", strconv.FormatInt(q.Start.UnixMilli(), 10))
		v.Set("endTime", strconv.FormatInt(q.End.UnixMilli(), 10))
	default:
		return nil, errors.New("metrics query needs an experiment id, prompt hash or time range")
	}
	return v, nil
}

// QueryMetrics lists stored metrics from a collector, newest first.
func (c *Client) QueryMetrics(ctx context.Context, q MetricsQuery) ([]models.StoredMetric, error) {
	params, err := q.values()
	if err != nil {
		return nil, err
	}
	var out []models.StoredMetric
	if err := c.do(ctx, http.MethodGet, "/metrics", params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AggregateMetrics fetches summary statistics for an experiment.
func (c *Client) AggregateMetrics(ctx context.Context, experimentID string) (*models.AggregatedMetrics, error) {
	var out models.AggregatedMetrics
	params := url.Values{"experimentId": {experimentID}}
	if err := c.do(ctx, http.MethodGet, "/metrics/aggregate", params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
	}

	if c.cfg.ProjectID != "" {
		if params == nil {
			params = url.Values{}
		}
		params.Set("projectId", c.cfg.ProjectID)
	}
	target := c.cfg.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	if c.retry.MaxAttempts <= 1 {
		return c.attempt(ctx, method, target, body, out)
	}
	return backoff.Do(ctx, c.retry, func(ctx context.Context) error {
		err := c.attempt(ctx, method, target, body, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return backoff.Permanent(err)
		}
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	})
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-SDK-Version", version.SDKHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
