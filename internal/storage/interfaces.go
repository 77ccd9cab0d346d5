package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/promptlens/pkg/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidQuery = errors.New("invalid query")
)

// MetricQuery selects stored metrics. Filters are applied by precedence:
// ExperimentID, then PromptHash, then the Start/End range.
type MetricQuery struct {
	ExperimentID string
	PromptHash   string
	Start        *time.Time
	End          *time.Time

	// Limit caps the result size. Zero means no limit.
	Limit int
}

// Validate rejects queries without a usable filter.
func (q MetricQuery) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}
	if strings.TrimSpace(q.ExperimentID) != "" || strings.TrimSpace(q.PromptHash) != "" {
		return nil
	}
	if q.Start == nil || q.End == nil {
		return fmt.Errorf("%w: experimentId, promptHash, or startTime and endTime are required", ErrInvalidQuery)
	}
	if q.End.Before(*q.Start) {
		return fmt.Errorf("%w: endTime is before startTime", ErrInvalidQuery)
	}
	return nil
}

// MetricStore persists metric records received by the collector.
// Query results are ordered newest first.
type MetricStore interface {
	Insert(ctx context.Context, records []models.MetricRecord) ([]models.StoredMetric, error)
	Query(ctx context.Context, q MetricQuery) ([]models.StoredMetric, error)
	Aggregate(ctx context.Context, experimentID string) (models.AggregatedMetrics, error)
	// DeleteBefore removes records whose timestamp is before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

func aggregate(experimentID string, stored []models.StoredMetric) models.AggregatedMetrics {
	agg := models.AggregatedMetrics{
		ExperimentID: experimentID,
		ModelStats:   map[string]int{},
	}
	var total int64
	var first, last int64
	for i, m := range stored {
		agg.TotalRequests++
		total += m.LatencyMs
		agg.ModelStats[m.Model]++
		if i == 0 || m.Timestamp < first {
			first = m.Timestamp
		}
		if i == 0 || m.Timestamp > last {
			last = m.Timestamp
		}
	}
	if agg.TotalRequests > 0 {
		agg.AvgLatencyMs = float64(total) / float64(agg.TotalRequests)
		start, end := time.UnixMilli(first).UTC(), time.UnixMilli(last).UTC()
		agg.TimeRange = models.TimeRange{Start: &start, End: &end}
	}
	return agg
}

// OpenMetricStore opens the store named by driver: "memory", "sqlite", or
// "postgres".
func OpenMetricStore(driver, dsn string, config *SQLConfig) (MetricStore, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "memory":
		return NewMemoryMetricStore(), nil
	case "sqlite":
		return OpenSQLStore(DialectSQLite, dsn, config)
	case "sqlite3":
		return OpenSQLStore(DialectSQLiteCgo, dsn, config)
	case "postgres", "postgresql", "cockroach", "cockroachdb":
		return OpenSQLStore(DialectPostgres, dsn, config)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}
