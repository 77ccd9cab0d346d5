package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/promptlens/internal/version"
	"github.com/haasonsaas/promptlens/pkg/models"
)

// Deliverer ships a batch of records to a collector.
type Deliverer interface {
	Deliver(ctx context.Context, batch []models.MetricRecord) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, batch []models.MetricRecord) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, batch []models.MetricRecord) error {
	return f(ctx, batch)
}

// DeliveryError reports a batch the collector did not accept. StatusCode is
// zero when the request never got a response.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("metrics delivery failed: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("metrics delivery failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("metrics delivery failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 4 << 10

// HTTPDeliverer posts batches as a JSON array to <BaseURL>/metrics.
type HTTPDeliverer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sdkVersion string
}

// HTTPOption configures an HTTPDeliverer.
type HTTPOption func(*HTTPDeliverer)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(d *HTTPDeliverer) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithSDKVersion overrides the X-SDK-Version header value.
func WithSDKVersion(v string) HTTPOption {
	return func(d *HTTPDeliverer) {
		d.sdkVersion = v
	}
}

// NewHTTPDeliverer creates a deliverer for the collector at baseURL.
func NewHTTPDeliverer(baseURL, apiKey string, opts ...HTTPOption) *HTTPDeliverer {
	d := &HTTPDeliverer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		sdkVersion: version.SDKHeader(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver implements Deliverer. Any non-2xx response is a *DeliveryError.
func (d *HTTPDeliverer) Deliver(ctx context.Context, batch []models.MetricRecord) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode metrics batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/metrics", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}
	req.Header.Set("X-SDK-Version", d.sdkVersion)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
