package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/promptlens/pkg/models"
)

// MemoryMetricStore provides an in-memory MetricStore.
type MemoryMetricStore struct {
	mu      sync.RWMutex
	metrics []models.StoredMetric
	now     func() time.Time
}

// NewMemoryMetricStore creates an in-memory metric store.
func NewMemoryMetricStore() *MemoryMetricStore {
	return &MemoryMetricStore{now: time.Now}
}

func (s *MemoryMetricStore) Insert(ctx context.Context, records []models.MetricRecord) ([]models.StoredMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	received := s.now().UTC()
	stored := make([]models.StoredMetric, 0, len(records))
	for _, rec := range records {
		stored = append(stored, models.StoredMetric{
			ID:           uuid.NewString(),
			ReceivedAt:   received,
			MetricRecord: cloneRecord(rec),
		})
	}
	s.mu.Lock()
	s.metrics = append(s.metrics, stored...)
	s.mu.Unlock()
	return stored, nil
}

func (s *MemoryMetricStore) Query(ctx context.Context, q MetricQuery) ([]models.StoredMetric, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	match := matcher(q)

	s.mu.RLock()
	out := make([]models.StoredMetric, 0)
	// Walk backwards so equal timestamps keep newest-received first after the stable sort.
	for i := len(s.metrics) - 1; i >= 0; i-- {
		if match(s.metrics[i]) {
			m := s.metrics[i]
			m.MetricRecord = cloneRecord(m.MetricRecord)
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryMetricStore) Aggregate(ctx context.Context, experimentID string) (models.AggregatedMetrics, error) {
	experimentID = strings.TrimSpace(experimentID)
	if experimentID == "" {
		return models.AggregatedMetrics{}, ErrInvalidQuery
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]models.StoredMetric, 0)
	for _, m := range s.metrics {
		if m.ExperimentID == experimentID {
			matched = append(matched, m)
		}
	}
	return aggregate(experimentID, matched), nil
}

func (s *MemoryMetricStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ms := cutoff.UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.metrics[:0]
	var removed int64
	for _, m := range s.metrics {
		if m.Timestamp < ms {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	clear(s.metrics[len(kept):])
	s.metrics = kept
	return removed, nil
}

func (s *MemoryMetricStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryMetricStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *MemoryMetricStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}

func matcher(q MetricQuery) func(models.StoredMetric) bool {
	if id := strings.TrimSpace(q.ExperimentID); id != "" {
		return func(m models.StoredMetric) bool { return m.ExperimentID == id }
	}
	if hash := strings.TrimSpace(q.PromptHash); hash != "" {
		return func(m models.StoredMetric) bool { return m.PromptHash == hash }
	}
	start, end := q.Start.UnixMilli(), q.End.UnixMilli()
	return func(m models.StoredMetric) bool {
		return m.Timestamp >= start && m.Timestamp <= end
	}
}

func cloneRecord(rec models.MetricRecord) models.MetricRecord {
	if rec.CustomMetrics != nil {
		custom := make(map[string]any, len(rec.CustomMetrics))
		for k, v := range rec.CustomMetrics {
			custom[k] = v
		}
		rec.CustomMetrics = custom
	}
	return rec
}
