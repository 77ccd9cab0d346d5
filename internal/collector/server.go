package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/internal/storage"
)

// ServerConfig wires a Server's dependencies.
type ServerConfig struct {
	Config  Config
	Store   storage.MetricStore
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Gatherer backs /prometheus. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server runs the collector HTTP API and the retention schedule.
type Server struct {
	cfg      Config
	store    storage.MetricStore
	logger   *observability.Logger
	handler  http.Handler
	pruner   *Pruner
	http     *http.Server
	listener net.Listener

	mu      sync.Mutex
	started bool
}

// OpenStore opens the store selected by cfg.
func OpenStore(cfg Config) (storage.MetricStore, error) {
	cfg = cfg.WithDefaults()
	sqlCfg := storage.DefaultSQLConfig()
	sqlCfg.MaxOpenConns = cfg.Store.MaxOpenConns
	sqlCfg.ConnMaxLifetime = cfg.Store.ConnMaxLifetime
	return storage.OpenMetricStore(cfg.Store.Driver, cfg.Store.DSN, sqlCfg)
}

// NewServer builds a Server. The store is owned by the caller until Stop,
// which closes it.
func NewServer(sc ServerConfig) (*Server, error) {
	if sc.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	cfg := sc.Config.WithDefaults()
	if issues := cfg.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("invalid collector config: %v", issues)
	}
	logger := sc.Logger
	if logger == nil {
		logger = observability.NewDiscardLogger()
	}
	gatherer := sc.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h, err := NewHandler(sc.Store,
		WithLogger(logger),
		WithMetrics(sc.Metrics),
		WithTracer(sc.Tracer),
		WithAuthKeys(cfg.AuthKeys...),
		WithJWTSecret(cfg.JWTSecret),
		WithRateLimit(cfg.RateLimit),
		WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		cfg:     cfg,
		store:   sc.Store,
		logger:  logger,
		handler: mux,
		pruner:  NewPruner(sc.Store, cfg.Retention, logger),
		http: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the routed API, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound address once Start has been called.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Listen
	}
	return s.listener.Addr().String()
}

// Start binds the listen address and serves until Stop. It returns once the
// listener is bound; serve errors are reported on the returned channel.
func (s *Server) Start(ctx context.Context) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, fmt.Errorf("collector already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}
	if err := s.pruner.Start(s.cfg.RetentionSchedule); err != nil {
		_ = ln.Close()
		return nil, err
	}
	s.listener = ln
	s.started = true

	errCh := make(chan error, 1)
	go func() {
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	s.logger.Info(ctx, "collector listening", "addr", ln.Addr().String(), "driver", s.cfg.Store.Driver, "auth", len(s.cfg.AuthKeys) > 0 || s.cfg.JWTSecret != "")
	return errCh, nil
}

// Stop drains in-flight requests, halts retention, and closes the store.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	var errs []error
	if started {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
	}
	s.pruner.Stop()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
