package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/promptlens/internal/backoff"
	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/pkg/models"
)

// recordingDeliverer captures batches and fails while failErr is set.
type recordingDeliverer struct {
	mu      sync.Mutex
	batches [][]models.MetricRecord
	failErr error
	calls   int
}

func (d *recordingDeliverer) Deliver(_ context.Context, batch []models.MetricRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failErr != nil {
		return d.failErr
	}
	cp := append([]models.MetricRecord(nil), batch...)
	d.batches = append(d.batches, cp)
	return nil
}

func (d *recordingDeliverer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = err
}

func (d *recordingDeliverer) snapshot() (int, [][]models.MetricRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls, append([][]models.MetricRecord(nil), d.batches...)
}

func record(i int) models.MetricRecord {
	return models.MetricRecord{
		ExperimentID: "exp",
		PromptHash:   fmt.Sprintf("hash-%d", i),
		Model:        "gpt-4",
		LatencyMs:    int64(i),
		Timestamp:    int64(1000 + i),
	}
}

// quietConfig never ticks during a test.
func quietConfig(batch int) Config {
	return Config{BatchSize: batch, FlushInterval: time.Hour}
}

func TestEnqueueFlushesAtBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		enqueued  int
		wantCalls int
		wantLeft  int
	}{
		{name: "one below threshold", enqueued: 4, wantCalls: 0, wantLeft: 4},
		{name: "exactly threshold", enqueued: 5, wantCalls: 1, wantLeft: 0},
		{name: "past threshold", enqueued: 7, wantCalls: 1, wantLeft: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDeliverer{}
			q := NewQueue(quietConfig(5), d)
			defer q.Stop()

			for i := 0; i < tt.enqueued; i++ {
				if err := q.Enqueue(context.Background(), record(i)); err != nil {
					t.Fatalf("Enqueue() error = %v", err)
				}
			}
			calls, batches := d.snapshot()
			if calls != tt.wantCalls {
				t.Fatalf("deliveries = %d, want %d", calls, tt.wantCalls)
			}
			if calls == 1 && len(batches[0]) != 5 {
				t.Fatalf("batch size = %d, want 5", len(batches[0]))
			}
			if got := q.Pending(); got != tt.wantLeft {
				t.Fatalf("Pending() = %d, want %d", got, tt.wantLeft)
			}
		})
	}
}

func TestRecordFlushesInBackground(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var delivered []models.MetricRecord
	d := DelivererFunc(func(ctx context.Context, batch []models.MetricRecord) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, batch...)
		return nil
	})
	q := NewQueue(quietConfig(2), d)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		q.Record(ctx, record(0))
		q.Record(ctx, record(1))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a pending delivery")
	}
	cancel()
	close(release)

	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 2 || delivered[0].PromptHash != "hash-0" || delivered[1].PromptHash != "hash-1" {
		t.Fatalf("delivered = %+v", delivered)
	}
}

func TestRecordOnDisabledQueueIsNoop(t *testing.T) {
	d := &recordingDeliverer{}
	disabled := false
	q := NewQueue(Config{BatchSize: 1, FlushInterval: time.Hour, Enabled: &disabled}, d)
	q.Record(context.Background(), record(0))
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if calls, _ := d.snapshot(); calls != 0 || q.Pending() != 0 {
		t.Fatalf("calls = %d pending = %d, want 0 and 0", calls, q.Pending())
	}
}

func TestFlushFailureRequeuesInOrder(t *testing.T) {
	d := &recordingDeliverer{}
	q := NewQueue(quietConfig(100), d)
	defer q.Stop()

	for i := 0; i < 3; i++ {
		_ = q.Enqueue(context.Background(), record(i))
	}

	d.setFail(&DeliveryError{StatusCode: 503, Body: "unavailable"})
	err := q.Flush(context.Background())
	var derr *DeliveryError
	if !errors.As(err, &derr) || derr.StatusCode != 503 {
		t.Fatalf("Flush() error = %v, want *DeliveryError 503", err)
	}
	if q.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", q.Pending())
	}

	_ = q.Enqueue(context.Background(), record(3))
	d.setFail(nil)
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	_, batches := d.snapshot()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	for i, rec := range batches[0] {
		if rec.LatencyMs != int64(i) {
			t.Fatalf("record %d out of order: %+v", i, batches[0])
		}
	}
}

func TestRequeuePrecedesRecordsEnqueuedDuringDelivery(t *testing.T) {
	var q *Queue
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var delivered []models.MetricRecord
	var mu sync.Mutex

	d := DelivererFunc(func(_ context.Context, batch []models.MetricRecord) error {
		first := false
		once.Do(func() { first = true })
		if first {
			close(started)
			<-release
			return errors.New("collector down")
		}
		mu.Lock()
		delivered = append(delivered, batch...)
		mu.Unlock()
		return nil
	})
	q = NewQueue(quietConfig(100), d)
	defer q.Stop()

	_ = q.Enqueue(context.Background(), record(0))
	_ = q.Enqueue(context.Background(), record(1))

	errCh := make(chan error, 1)
	go func() { errCh <- q.Flush(context.Background()) }()
	<-started

	// Enqueue must not wait on the in-flight delivery.
	if err := q.Enqueue(context.Background(), record(2)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	close(release)
	if err := <-errCh; err == nil {
		t.Fatal("expected first flush to fail")
	}

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 3 {
		t.Fatalf("delivered %d records, want 3", len(delivered))
	}
	for i, rec := range delivered {
		if rec.LatencyMs != int64(i) {
			t.Fatalf("delivery order = %+v", delivered)
		}
	}
}

func TestDisabledQueueIsNoop(t *testing.T) {
	d := &recordingDeliverer{}
	disabled := false
	q := NewQueue(Config{BatchSize: 1, Enabled: &disabled}, d)

	if q.Enabled() {
		t.Fatal("queue should start disabled")
	}
	if err := q.Enqueue(context.Background(), record(0)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if calls, _ := d.snapshot(); calls != 0 || q.Pending() != 0 {
		t.Fatalf("disabled queue delivered=%d pending=%d", calls, q.Pending())
	}
}

func TestSetEnabledKeepsBuffer(t *testing.T) {
	d := &recordingDeliverer{}
	q := NewQueue(quietConfig(10), d)
	defer q.Stop()

	_ = q.Enqueue(context.Background(), record(0))
	q.SetEnabled(false)
	q.SetEnabled(false)
	if q.Pending() != 1 {
		t.Fatalf("Pending() = %d after disable, want 1", q.Pending())
	}
	q.SetEnabled(true)
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if calls, _ := d.snapshot(); calls != 1 {
		t.Fatalf("deliveries = %d, want 1", calls)
	}
}

func TestPeriodicFlushSwallowsErrors(t *testing.T) {
	d := &recordingDeliverer{}
	d.setFail(errors.New("offline"))
	q := NewQueue(Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, d)
	defer q.Stop()

	_ = q.Enqueue(context.Background(), record(0))

	deadline := time.Now().Add(2 * time.Second)
	for {
		calls, _ := d.snapshot()
		if calls >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("periodic flush attempted %d times, want >= 2", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if q.Pending() != 1 {
		t.Fatalf("Pending() = %d, want record kept after failures", q.Pending())
	}

	d.setFail(nil)
	deadline = time.Now().Add(2 * time.Second)
	for q.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("periodic flush never delivered after recovery")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseDrainsWithRetry(t *testing.T) {
	attempts := 0
	var mu sync.Mutex
	var delivered int
	d := DelivererFunc(func(_ context.Context, batch []models.MetricRecord) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		delivered += len(batch)
		return nil
	})
	policy := backoff.Policy{Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 1, MaxAttempts: 5}
	q := NewQueue(quietConfig(100), d, WithRetryPolicy(policy))

	for i := 0; i < 4; i++ {
		_ = q.Enqueue(context.Background(), record(i))
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if delivered != 4 || q.Pending() != 0 {
		t.Fatalf("delivered=%d pending=%d", delivered, q.Pending())
	}
	if q.Enabled() {
		t.Fatal("queue should be disabled after Close")
	}
}

func TestCloseReportsUndelivered(t *testing.T) {
	d := &recordingDeliverer{}
	d.setFail(&DeliveryError{StatusCode: 500})
	policy := backoff.Policy{Initial: time.Millisecond, Factor: 1, MaxAttempts: 2}
	q := NewQueue(quietConfig(100), d, WithRetryPolicy(policy))
	_ = q.Enqueue(context.Background(), record(0))

	err := q.Close(context.Background())
	var derr *DeliveryError
	if !errors.As(err, &derr) || !errors.Is(err, backoff.ErrExhausted) {
		t.Fatalf("Close() error = %v", err)
	}
	if q.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", q.Pending())
	}
}

func TestMaxBufferDropsOldest(t *testing.T) {
	d := &recordingDeliverer{}
	m := observability.NewMetrics(prometheus.NewRegistry())
	q := NewQueue(Config{BatchSize: 100, FlushInterval: time.Hour, MaxBuffer: 3}, d, WithMetrics(m))
	defer q.Stop()

	for i := 0; i < 5; i++ {
		_ = q.Enqueue(context.Background(), record(i))
	}
	if q.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", q.Pending())
	}
	if got := testutil.ToFloat64(m.QueueRecordsDropped); got != 2 {
		t.Fatalf("dropped = %v, want 2", got)
	}

	_ = q.Flush(context.Background())
	_, batches := d.snapshot()
	if batches[0][0].LatencyMs != 2 {
		t.Fatalf("oldest kept record = %+v, want latency 2", batches[0][0])
	}
	if got := testutil.ToFloat64(m.QueueFlushes.WithLabelValues("success")); got != 1 {
		t.Fatalf("successful flushes = %v, want 1", got)
	}
}

func TestConcurrentEnqueueDeliversEverythingOnce(t *testing.T) {
	d := &recordingDeliverer{}
	q := NewQueue(quietConfig(7), d)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = q.Enqueue(context.Background(), record(w*50+i))
			}
		}(w)
	}
	wg.Wait()
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, batches := d.snapshot()
	seen := map[int64]bool{}
	for _, b := range batches {
		for _, rec := range b {
			if seen[rec.LatencyMs] {
				t.Fatalf("record %d delivered twice", rec.LatencyMs)
			}
			seen[rec.LatencyMs] = true
		}
	}
	if len(seen) != 500 {
		t.Fatalf("delivered %d unique records, want 500", len(seen))
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.BatchSize != DefaultBatchSize || cfg.FlushInterval != DefaultFlushInterval {
		t.Fatalf("defaults = %+v", cfg)
	}
	if !cfg.IsEnabled() {
		t.Fatal("nil Enabled should mean enabled")
	}
}
