// Package interceptor wraps an outbound model call so that each invocation
// runs with a prompt variant chosen by an experiment, is timed, and emits a
// metric record.
package interceptor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/promptlens/internal/experiments"
	"github.com/haasonsaas/promptlens/internal/hashing"
	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/pkg/models"
)

// Call is the operation being intercepted.
type Call[R any] func(ctx context.Context, args ...any) (R, error)

// Func is an intercepted Call.
type Func[R any] func(ctx context.Context, args ...any) (*models.ExperimentResult[R], error)

// Sink receives metric records. Record must not block on delivery and owns
// its failures. *metrics.Queue implements it.
type Sink interface {
	Record(ctx context.Context, rec models.MetricRecord)
}

type options struct {
	selector      *experiments.Selector
	sink          Sink
	userID        string
	customMetrics map[string]any
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	now           func() time.Time
}

// Option configures interception.
type Option func(*options)

// WithSelector shares a selector, and so its rotation state, between wrapped
// calls. Without it every Wrap gets a private selector.
func WithSelector(s *experiments.Selector) Option {
	return func(o *options) { o.selector = s }
}

// WithSink sets where metric records go when the experiment tracks metrics.
func WithSink(s Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithUserID selects per-user rotation for every call. A user id on the call
// context (observability.UserIDKey) takes precedence.
func WithUserID(userID string) Option {
	return func(o *options) { o.userID = userID }
}

// WithCustomMetrics attaches extra values to every emitted record.
func WithCustomMetrics(m map[string]any) Option {
	return func(o *options) { o.customMetrics = m }
}

// WithLogger sets the logger used for metric recording failures.
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records call counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer wraps each call in a span.
func WithTracer(t *observability.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func buildOptions(opts []Option) *options {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.selector == nil {
		o.selector = experiments.NewSelector(nil)
	}
	if o.logger == nil {
		o.logger = observability.NewDiscardLogger()
	}
	return o
}

// prepare validates cfg and returns a private copy with an id assigned.
func prepare(cfg models.ExperimentConfig) (models.ExperimentConfig, error) {
	if err := cfg.Validate(); err != nil {
		return models.ExperimentConfig{}, fmt.Errorf("%w: %w", experiments.ErrInvalidInput, err)
	}
	cfg.ID = strings.TrimSpace(cfg.ID)
	if cfg.ID == "" {
		cfg.ID = "exp_" + uuid.NewString()
	}
	cfg.PromptVariants = append([]string(nil), cfg.PromptVariants...)
	if cfg.Weights != nil {
		cfg.Weights = append([]float64(nil), cfg.Weights...)
	}
	return cfg, nil
}

// Wrap returns call wrapped in the experiment described by cfg. The config is
// validated and copied up front; an empty ID becomes "exp_<uuid>".
//
//	wrapped, err := interceptor.Wrap(call, models.ExperimentConfig{
//	    ID:             "greeting",
//	    PromptVariants: []string{"Hi!", "Hello there."},
//	    TrackMetrics:   true,
//	}, interceptor.WithSink(queue))
//	result, err := wrapped(ctx, []models.ChatMessage{{Role: models.RoleUser, Content: "placeholder"}})
func Wrap[R any](call Call[R], cfg models.ExperimentConfig, opts ...Option) (Func[R], error) {
	if call == nil {
		return nil, fmt.Errorf("%w: call is nil", experiments.ErrInvalidInput)
	}
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	return func(ctx context.Context, args ...any) (*models.ExperimentResult[R], error) {
		return invoke(ctx, o, cfg, call, args)
	}, nil
}

func invoke[R any](ctx context.Context, o *options, cfg models.ExperimentConfig, call Call[R], args []any) (*models.ExperimentResult[R], error) {
	userID := o.userID
	if id := observability.GetUserID(ctx); id != "" {
		userID = id
	}

	sel, err := o.selector.SelectFor(cfg, userID)
	if err != nil {
		return nil, err
	}
	model := ResolveModel(args, cfg.Model)
	callArgs := substituteArgs(args, sel.Variant)

	ctx, span := o.tracer.TraceExperimentCall(ctx, cfg.ID, sel.Index)
	defer span.End()

	start := o.now()
	resp, err := call(ctx, callArgs...)
	latency := o.now().Sub(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordCall(cfg.ID, strconv.Itoa(sel.Index), model, status, latency.Seconds())
	o.tracer.SetAttributes(span, "promptlens.model", model, "promptlens.latency_ms", latency.Milliseconds())
	if err != nil {
		o.tracer.RecordError(span, err)
		o.logger.Debug(observability.AddExperimentID(ctx, cfg.ID), "experiment call failed", "variant", sel.Index, "error", err)
		return nil, err
	}

	rec := models.MetricRecord{
		ExperimentID:  cfg.ID,
		PromptHash:    hashing.HashPrompt(sel.Variant),
		Model:         model,
		LatencyMs:     latency.Milliseconds(),
		UserID:        hashing.HashUserID(userID),
		Timestamp:     o.now().UnixMilli(),
		CustomMetrics: copyCustomMetrics(o.customMetrics),
	}
	if cfg.TrackMetrics && o.sink != nil {
		o.sink.Record(observability.AddExperimentID(ctx, cfg.ID), rec)
	}

	return &models.ExperimentResult[R]{
		Response: resp,
		Experiment: models.ExperimentInfo{
			ID:            cfg.ID,
			VariantIndex:  sel.Index,
			PromptVariant: sel.Variant,
			Metrics:       &rec,
		},
	}, nil
}

func copyCustomMetrics(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Interceptor binds calls to experiments by id from a shared, reloadable
// experiment set. All bound calls share one selector, sink and telemetry.
type Interceptor struct {
	opts *options

	mu          sync.RWMutex
	experiments map[string]models.ExperimentConfig
}

// New creates an Interceptor with the given experiments.
func New(cfg experiments.Config, opts ...Option) (*Interceptor, error) {
	i := &Interceptor{opts: buildOptions(opts)}
	if err := i.SetExperiments(cfg); err != nil {
		return nil, err
	}
	return i, nil
}

// SetExperiments replaces the experiment set. Rotation state is kept, so a
// reload that leaves an experiment's variants alone continues its rotation.
func (i *Interceptor) SetExperiments(cfg experiments.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", experiments.ErrInvalidInput, err)
	}
	next := make(map[string]models.ExperimentConfig, len(cfg.Experiments))
	for _, exp := range cfg.Experiments {
		prepared, err := prepare(exp)
		if err != nil {
			return err
		}
		next[prepared.ID] = prepared
	}
	i.mu.Lock()
	i.experiments = next
	i.mu.Unlock()
	return nil
}

// Experiment returns the current config for id.
func (i *Interceptor) Experiment(id string) (models.ExperimentConfig, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	cfg, ok := i.experiments[id]
	return cfg, ok
}

// Selector returns the shared selector.
func (i *Interceptor) Selector() *experiments.Selector {
	return i.opts.selector
}

// Bind wraps call in the experiment named experimentID. The experiment is
// looked up on every invocation so reloads apply to already bound calls; an
// id missing at call time fails with experiments.ErrInvalidInput.
func Bind[R any](i *Interceptor, experimentID string, call Call[R]) (Func[R], error) {
	if call == nil {
		return nil, fmt.Errorf("%w: call is nil", experiments.ErrInvalidInput)
	}
	if _, ok := i.Experiment(experimentID); !ok {
		return nil, fmt.Errorf("%w: unknown experiment %q", experiments.ErrInvalidInput, experimentID)
	}
	return func(ctx context.Context, args ...any) (*models.ExperimentResult[R], error) {
		cfg, ok := i.Experiment(experimentID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown experiment %q", experiments.ErrInvalidInput, experimentID)
		}
		return invoke(ctx, i.opts, cfg, call, args)
	}, nil
}
