package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/internal/storage"
)

var retentionParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Pruner deletes stored metrics older than a retention window on a cron
// schedule.
type Pruner struct {
	store     storage.MetricStore
	retention time.Duration
	logger    *observability.Logger
	now       func() time.Time

	mu     sync.Mutex
	runner *cron.Cron
}

// NewPruner returns a pruner for store. A zero retention disables pruning.
func NewPruner(store storage.MetricStore, retention time.Duration, logger *observability.Logger) *Pruner {
	if logger == nil {
		logger = observability.NewDiscardLogger()
	}
	return &Pruner{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Prune removes records older than the retention window once.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention)
	removed, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune metrics before %s: %w", cutoff.UTC().Format(time.RFC3339), err)
	}
	return removed, nil
}

// Start schedules Prune. It is a no-op when retention is disabled.
func (p *Pruner) Start(schedule string) error {
	if p.retention <= 0 {
		return nil
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runner != nil {
		return fmt.Errorf("pruner already started")
	}
	runner := cron.New(cron.WithParser(retentionParser))
	if _, err := runner.AddFunc(schedule, p.run); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	runner.Start()
	p.runner = runner
	p.logger.Info(context.Background(), "metric retention scheduled", "schedule", schedule, "retention", p.retention.String())
	return nil
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	removed, err := p.Prune(ctx)
	if err != nil {
		p.logger.Error(ctx, "metric retention failed", "error", err)
		return
	}
	p.logger.Info(ctx, "metric retention complete", "removed", removed)
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	runner := p.runner
	p.runner = nil
	p.mu.Unlock()
	if runner != nil {
		<-runner.Stop().Done()
	}
}
