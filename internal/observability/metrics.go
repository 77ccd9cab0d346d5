package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the experiment pipeline and the collector service:
//   - intercepted calls by experiment, variant and outcome
//   - metric queue depth, flushes and dropped records
//   - collector HTTP traffic and store latency
//
// A nil *Metrics is valid; every Record method is a no-op on it.
type Metrics struct {
	// CallCounter counts intercepted calls.
	// Labels: experiment, variant, status (success|error)
	CallCounter *prometheus.CounterVec

	// CallDuration measures intercepted call latency in seconds.
	// Labels: experiment, model
	CallDuration *prometheus.HistogramVec

	// QueueDepth is the number of buffered metric records.
	QueueDepth prometheus.Gauge

	// QueueFlushes counts batch deliveries.
	// Labels: status (success|error)
	QueueFlushes *prometheus.CounterVec

	// QueueRecordsDelivered counts records acknowledged by the collector.
	QueueRecordsDelivered prometheus.Counter

	// QueueRecordsDropped counts records evicted by the buffer cap.
	QueueRecordsDropped prometheus.Counter

	// HTTPRequestDuration measures collector request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts collector requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// StoreOperationDuration measures store latency.
	// Labels: operation (insert|query|aggregate|prune), status (success|error)
	StoreOperationDuration *prometheus.HistogramVec

	// MetricsIngested counts records accepted by the collector.
	MetricsIngested prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptlens_experiment_calls_total",
				Help: "Total number of intercepted calls by experiment, variant, and status",
			},
			[]string{"experiment", "variant", "status"},
		),

		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptlens_experiment_call_duration_seconds",
				Help:    "Duration of intercepted calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"experiment", "model"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "promptlens_metrics_queue_depth",
				Help: "Number of metric records waiting for delivery",
			},
		),

		QueueFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptlens_metrics_queue_flushes_total",
				Help: "Total number of metric batch deliveries by status",
			},
			[]string{"status"},
		),

		QueueRecordsDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "promptlens_metrics_queue_delivered_total",
				Help: "Total number of metric records delivered",
			},
		),

		QueueRecordsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "promptlens_metrics_queue_dropped_total",
				Help: "Total number of metric records dropped because the buffer was full",
			},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptlens_http_request_duration_seconds",
				Help:    "Duration of collector HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptlens_http_requests_total",
				Help: "Total number of collector HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptlens_store_operation_duration_seconds",
				Help:    "Duration of metric store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "status"},
		),

		MetricsIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "promptlens_collector_metrics_ingested_total",
				Help: "Total number of metric records accepted by the collector",
			},
		),
	}
}

// RecordCall records one intercepted call.
func (m *Metrics) RecordCall(experiment, variant, model, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CallCounter.WithLabelValues(experiment, variant, status).Inc()
	m.CallDuration.WithLabelValues(experiment, model).Observe(durationSeconds)
}

// SetQueueDepth reports the current queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordFlush records a batch delivery attempt of size records.
func (m *Metrics) RecordFlush(status string, records int) {
	if m == nil {
		return
	}
	m.QueueFlushes.WithLabelValues(status).Inc()
	if status == "success" {
		m.QueueRecordsDelivered.Add(float64(records))
	}
}

// RecordDropped counts records evicted from a full buffer.
func (m *Metrics) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.QueueRecordsDropped.Add(float64(n))
}

// RecordHTTPRequest records a collector request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordStoreOperation records a store call.
func (m *Metrics) RecordStoreOperation(operation, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StoreOperationDuration.WithLabelValues(operation, status).Observe(durationSeconds)
}

// RecordIngested counts records accepted by the collector.
func (m *Metrics) RecordIngested(n int) {
	if m == nil {
		return
	}
	m.MetricsIngested.Add(float64(n))
}
