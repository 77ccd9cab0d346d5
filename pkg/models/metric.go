package models

import "time"

// UnknownModel labels metrics whose model could not be resolved.
const UnknownModel = "unknown"

// MetricRecord is one observation of a single intercepted call.
// Prompt and user identifiers are stored as SHA-256 hex digests.
type MetricRecord struct {
	ExperimentID  string         `json:"experiment_id"`
	PromptHash    string         `json:"prompt_hash"`
	Model         string         `json:"model"`
	LatencyMs     int64          `json:"latency_ms"`
	UserID        string         `json:"user_id,omitempty"`
	Timestamp     int64          `json:"timestamp"` // epoch milliseconds
	CustomMetrics map[string]any `json:"custom_metrics,omitempty"`
}

// Time returns the record timestamp as a time.Time.
func (m MetricRecord) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// ExperimentInfo describes which variant served a call.
type ExperimentInfo struct {
	ID            string        `json:"id"`
	VariantIndex  int           `json:"variant_index"`
	PromptVariant string        `json:"prompt_variant"`
	Metrics       *MetricRecord `json:"metrics,omitempty"`
}

// ExperimentResult pairs a call's response with its experiment metadata.
type ExperimentResult[R any] struct {
	Response   R              `json:"response"`
	Experiment ExperimentInfo `json:"experiment"`
}

// StoredMetric is a metric record as persisted by the collector.
type StoredMetric struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	MetricRecord
}

// TimeRange bounds a set of stored metrics.
type TimeRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// AggregatedMetrics summarizes stored metrics for one experiment.
type AggregatedMetrics struct {
	ExperimentID  string         `json:"experiment_id"`
	TotalRequests int            `json:"total_requests"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	ModelStats    map[string]int `json:"model_stats"`
	TimeRange     TimeRange      `json:"time_range"`
}
