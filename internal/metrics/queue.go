// Package metrics buffers experiment metric records and delivers them to a
// collector in batches, either when the buffer reaches the batch size or on a
// periodic tick.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/promptlens/internal/backoff"
	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/pkg/models"
)

const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second
)

// Config controls batching. The zero value gets the defaults and an enabled
// queue.
type Config struct {
	BatchSize     int           `yaml:"batch_size" json:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
	// Enabled defaults to true when nil.
	Enabled *bool `yaml:"enabled" json:"enabled"`
	// MaxBuffer caps the buffer; the oldest records are dropped past it.
	// Zero means unbounded.
	MaxBuffer int `yaml:"max_buffer" json:"max_buffer"`
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxBuffer < 0 {
		c.MaxBuffer = 0
	}
	return c
}

// IsEnabled reports the effective enabled flag.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *observability.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger.WithFields("component", "metrics_queue")
		}
	}
}

// WithMetrics reports queue depth and flush outcomes to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// WithTracer traces each batch delivery.
func WithTracer(t *observability.Tracer) Option {
	return func(q *Queue) {
		q.tracer = t
	}
}

// WithRetryPolicy sets the policy Close uses to drain the buffer.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(q *Queue) {
		q.drainPolicy = p
	}
}

// Queue is an in-memory buffer of metric records.
//
// Delivery is at-least-once: a failed batch is put back at the front of the
// buffer, ahead of records enqueued while it was in flight. Flushes never
// overlap. Enqueue flushes a full batch inline; Record never waits on a
// delivery.
type Queue struct {
	deliverer     Deliverer
	batchSize     int
	flushInterval time.Duration
	maxBuffer     int
	drainPolicy   backoff.Policy

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	// flushMu serializes flushes; it is always taken before mu.
	flushMu sync.Mutex

	// inflight tracks flushes started by Record.
	inflight sync.WaitGroup

	mu      sync.Mutex
	buffer  []models.MetricRecord
	enabled bool
	stop    chan struct{}
	done    chan struct{}
}

// NewQueue creates a queue delivering through d. If the config is enabled
// the periodic flush starts immediately; stop it with Stop or Close.
func NewQueue(cfg Config, d Deliverer, opts ...Option) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		deliverer:     d,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		maxBuffer:     cfg.MaxBuffer,
		drainPolicy:   backoff.DefaultPolicy(),
		logger:        observability.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if cfg.IsEnabled() {
		q.SetEnabled(true)
	}
	return q
}

// Enqueue buffers rec. When the buffer reaches the batch size it is flushed
// before Enqueue returns, and the delivery error, if any, is returned.
// Enqueue on a disabled queue does nothing.
func (q *Queue) Enqueue(ctx context.Context, rec models.MetricRecord) error {
	n, ok := q.add(ctx, rec, false)
	if ok && n >= q.batchSize {
		return q.Flush(ctx)
	}
	return nil
}

// Record buffers rec without waiting on delivery. A full batch is flushed on
// a background goroutine detached from ctx's cancellation; failures are
// logged and the batch stays queued.
func (q *Queue) Record(ctx context.Context, rec models.MetricRecord) {
	q.add(ctx, rec, true)
}

// add appends rec and returns the new buffer length. With background set, a
// full batch starts a detached flush while mu is still held so Close can wait
// for it.
func (q *Queue) add(ctx context.Context, rec models.MetricRecord, background bool) (int, bool) {
	q.mu.Lock()
	if !q.enabled {
		q.mu.Unlock()
		return 0, false
	}
	q.buffer = append(q.buffer, rec)
	dropped := q.trimLocked()
	n := len(q.buffer)
	if background && n >= q.batchSize {
		q.inflight.Add(1)
		go q.flushDetached(context.WithoutCancel(ctx))
	}
	q.mu.Unlock()

	q.metrics.SetQueueDepth(n)
	if dropped > 0 {
		q.metrics.RecordDropped(dropped)
		q.logger.Warn(ctx, "metrics buffer full, dropped oldest records", "dropped", dropped)
	}
	return n, true
}

func (q *Queue) flushDetached(ctx context.Context) {
	defer q.inflight.Done()
	if err := q.Flush(ctx); err != nil {
		q.logger.Warn(ctx, "background metrics flush failed", "error", err)
	}
}

// Flush delivers everything buffered as one batch. It does nothing when the
// queue is disabled or empty. On failure the batch is requeued and the error
// (a *DeliveryError for HTTP deliveries) is returned.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	enabled := q.enabled
	q.mu.Unlock()
	if !enabled {
		return nil
	}
	return q.flush(ctx)
}

func (q *Queue) flush(ctx context.Context) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	if len(q.buffer) == 0 {
		q.mu.Unlock()
		return nil
	}
	batch := q.buffer
	q.buffer = nil
	q.mu.Unlock()

	ctx, span := q.tracer.TraceMetricsFlush(ctx, len(batch))
	defer span.End()

	err := q.deliverer.Deliver(ctx, batch)
	if err == nil {
		q.metrics.RecordFlush("success", len(batch))
		q.metrics.SetQueueDepth(q.Pending())
		q.logger.Debug(ctx, "delivered metrics batch", "records", len(batch))
		return nil
	}

	q.tracer.RecordError(span, err)
	q.mu.Lock()
	requeued := make([]models.MetricRecord, 0, len(batch)+len(q.buffer))
	requeued = append(requeued, batch...)
	q.buffer = append(requeued, q.buffer...)
	dropped := q.trimLocked()
	n := len(q.buffer)
	q.mu.Unlock()

	q.metrics.RecordFlush("error", len(batch))
	q.metrics.RecordDropped(dropped)
	q.metrics.SetQueueDepth(n)
	return fmt.Errorf("flush %d metrics: %w", len(batch), err)
}

// trimLocked enforces maxBuffer by dropping from the front. Callers hold mu.
func (q *Queue) trimLocked() int {
	if q.maxBuffer <= 0 || len(q.buffer) <= q.maxBuffer {
		return 0
	}
	over := len(q.buffer) - q.maxBuffer
	q.buffer = append(q.buffer[:0:0], q.buffer[over:]...)
	return over
}

// SetEnabled toggles collection. Enabling starts the periodic flush and
// disabling stops it; buffered records are kept either way.
func (q *Queue) SetEnabled(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enabled == enabled {
		return
	}
	q.enabled = enabled
	if enabled {
		q.startLocked()
	} else {
		q.stopLocked()
	}
}

// Enabled reports whether the queue accepts records.
func (q *Queue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// Pending returns the number of buffered records.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

func (q *Queue) startLocked() {
	if q.stop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	q.stop, q.done = stop, done
	go q.run(stop, done)
}

// stopLocked signals the ticker goroutine and returns its done channel.
func (q *Queue) stopLocked() chan struct{} {
	if q.stop == nil {
		return nil
	}
	close(q.stop)
	done := q.done
	q.stop, q.done = nil, nil
	return done
}

func (q *Queue) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := q.Flush(context.Background()); err != nil {
				q.logger.Debug(context.Background(), "periodic metrics flush failed", "error", err)
			}
		}
	}
}

// Stop halts the periodic flush without disabling the queue or draining it.
func (q *Queue) Stop() {
	q.mu.Lock()
	done := q.stopLocked()
	q.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops the periodic flush, disables the queue, waits for background
// flushes and drains the buffer,
// retrying failed deliveries with the drain policy. It returns the last
// delivery error if records remain.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.enabled = false
	done := q.stopLocked()
	q.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	idle := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	err := backoff.Do(ctx, q.drainPolicy, func(ctx context.Context) error {
		return q.flush(ctx)
	})
	if err != nil {
		q.logger.Warn(ctx, "metrics left undelivered on close", "pending", q.Pending(), "error", err)
		return err
	}
	return nil
}
