package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/haasonsaas/promptlens/internal/auth"
	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/internal/ratelimit"
	"github.com/haasonsaas/promptlens/internal/storage"
	"github.com/haasonsaas/promptlens/pkg/models"
)

// Handler serves the metrics ingestion and query API.
type Handler struct {
	store   storage.MetricStore
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	authCfg auth.Config
	auth    *auth.Service
	limiter *ratelimit.Limiter
	maxBody int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

func WithLogger(logger *observability.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *observability.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func WithTracer(t *observability.Tracer) HandlerOption {
	return func(h *Handler) { h.tracer = t }
}

// WithAuthKeys accepts any of keys as a bearer token on the API routes.
func WithAuthKeys(keys ...string) HandlerOption {
	return func(h *Handler) { h.authCfg.APIKeys = append(h.authCfg.APIKeys, keys...) }
}

// WithJWTSecret accepts HS256 tokens signed with secret as bearer tokens.
func WithJWTSecret(secret string) HandlerOption {
	return func(h *Handler) { h.authCfg.JWTSecret = secret }
}

// WithRateLimit limits each caller, keyed by principal or client address.
func WithRateLimit(cfg ratelimit.Config) HandlerOption {
	return func(h *Handler) { h.limiter = ratelimit.NewLimiter(cfg) }
}

func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// NewHandler builds a Handler over store.
func NewHandler(store storage.MetricStore, opts ...HandlerOption) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if _, err := compiledBatchSchema(); err != nil {
		return nil, fmt.Errorf("compile metrics schema: %w", err)
	}
	h := &Handler{
		store:   store,
		logger:  observability.NewDiscardLogger(),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.auth = auth.NewService(h.authCfg)
	return h, nil
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /metrics", h.wrap("/metrics", h.handleIngest))
	mux.Handle("GET /metrics", h.wrap("/metrics", h.handleQuery))
	mux.Handle("GET /metrics/aggregate", h.wrap("/metrics/aggregate", h.handleAggregate))
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

var errMissingParams = errors.New("missing required parameters")

// msgMissingParams is the wire message for errMissingParams.
const msgMissingParams = "Missing required parameters"

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to read request body"})
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})
		return
	}
	if _, ok := payload.([]any); !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Metrics must be an array"})
		return
	}
	schema, _ := compiledBatchSchema()
	if err := schema.Validate(payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid metrics: " + err.Error()})
		return
	}

	var records []models.MetricRecord
	if err := json.Unmarshal(body, &records); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid metrics: " + err.Error()})
		return
	}

	err = h.storeOp(ctx, "insert", func(ctx context.Context) error {
		_, err := h.store.Insert(ctx, records)
		return err
	})
	if err != nil {
		h.logger.Error(ctx, "error storing metrics", "error", err, "records", len(records))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to store metrics"})
		return
	}
	h.metrics.RecordIngested(len(records))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r)
	if errors.Is(err, errMissingParams) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgMissingParams})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var results []models.StoredMetric
	err = h.storeOp(ctx, "query", func(ctx context.Context) error {
		var err error
		results, err = h.store.Query(ctx, q)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidQuery) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgMissingParams})
			return
		}
		h.logger.Error(ctx, "error fetching metrics", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch metrics"})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	experimentID := strings.TrimSpace(r.URL.Query().Get("experimentId"))
	if experimentID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "experimentId is required"})
		return
	}

	var agg models.AggregatedMetrics
	err := h.storeOp(ctx, "aggregate", func(ctx context.Context) error {
		var err error
		agg, err = h.store.Aggregate(ctx, experimentID)
		return err
	})
	if err != nil {
		h.logger.Error(ctx, "error aggregating metrics", "error", err, "experiment_id", experimentID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to aggregate metrics"})
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// storeOp times and traces one store call.
func (h *Handler) storeOp(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := h.tracer.TraceStoreOperation(ctx, op)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	status := "success"
	if err != nil {
		status = "error"
		h.tracer.RecordError(span, err)
	}
	h.metrics.RecordStoreOperation(op, status, time.Since(start).Seconds())
	return err
}

// wrap applies request ids, tracing, metrics, and authentication.
func (h *Handler) wrap(path string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := h.tracer.ExtractContext(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = observability.AddRequestID(ctx, requestID)
		ctx, span := h.tracer.TraceHTTPRequest(ctx, r.Method, path)
		defer span.End()
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		principal, err := h.authenticate(r)
		if err != nil {
			h.logger.Warn(ctx, "collector auth failed", "path", path, "error", err)
			writeJSON(rec, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		} else if ok, wait := h.limiter.Allow(callerKey(r, principal), 1); !ok {
			rec.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSON(rec, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		} else {
			next(rec, r.WithContext(auth.WithPrincipal(ctx, principal)))
		}

		caller := ""
		if principal != nil {
			caller = principal.ID
		}
		h.metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start).Seconds())
		h.logger.Debug(ctx, "collector request", "method", r.Method, "path", path, "status", rec.status, "caller", caller, "duration_ms", time.Since(start).Milliseconds())
	})
}

func callerKey(r *http.Request, p *auth.Principal) string {
	if p != nil {
		return p.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticate returns a nil principal and no error when auth is disabled.
func (h *Handler) authenticate(r *http.Request) (*auth.Principal, error) {
	if !h.auth.Enabled() {
		return nil, nil
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		token = r.Header.Get("X-API-Key")
	}
	return h.auth.Authenticate(token)
}

func parseQuery(r *http.Request) (storage.MetricQuery, error) {
	values := r.URL.Query()
	q := storage.MetricQuery{
		ExperimentID: strings.TrimSpace(values.Get("experimentId")),
		PromptHash:   strings.TrimSpace(values.Get("promptHash")),
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, fmt.Errorf("invalid limit %q", raw)
		}
		q.Limit = limit
	}
	if q.ExperimentID != "" || q.PromptHash != "" {
		return q, nil
	}
	startRaw, endRaw := strings.TrimSpace(values.Get("startTime")), strings.TrimSpace(values.Get("endTime"))
	if startRaw == "" || endRaw == "" {
		return q, errMissingParams
	}
	start, err := parseTime(startRaw)
	if err != nil {
		return q, fmt.Errorf("invalid startTime: %w", err)
	}
	end, err := parseTime(endRaw)
	if err != nil {
		return q, fmt.Errorf("invalid endTime: %w", err)
	}
	q.Start, q.End = &start, &end
	return q, nil
}

// parseTime accepts RFC 3339 timestamps or epoch milliseconds.
func parseTime(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or epoch milliseconds")
	}
	return t, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
