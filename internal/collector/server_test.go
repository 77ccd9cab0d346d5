package collector

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/promptlens/internal/observability"
	"github.com/haasonsaas/promptlens/internal/storage"
)

func TestServerStartServeStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, err := NewServer(ServerConfig{
		Config:   Config{Listen: "127.0.0.1:0", Store: StoreConfig{Driver: DriverMemory}},
		Store:    storage.NewMemoryMetricStore(),
		Metrics:  observability.NewMetrics(reg),
		Gatherer: reg,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	errCh, err := srv.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	base := "http://" + srv.Addr()

	resp, err := http.Post(base+"/metrics", "application/json", strings.NewReader(twoRecords))
	if err != nil {
		t.Fatalf("POST /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/prometheus")
	if err != nil {
		t.Fatalf("GET /prometheus: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "promptlens_collector_metrics_ingested_total") {
		t.Fatalf("expected ingested counter in exposition, got:\n%s", body)
	}

	if _, err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start to fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("serve error = %v", err)
	}
}

func TestNewServerValidatesConfig(t *testing.T) {
	_, err := NewServer(ServerConfig{
		Config: Config{Store: StoreConfig{Driver: "mongo"}},
		Store:  storage.NewMemoryMetricStore(),
	})
	if err == nil {
		t.Fatalf("expected config error")
	}
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, err := OpenStore(Config{Store: StoreConfig{Driver: DriverMemory}})
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if _, ok := store.(*storage.MemoryMetricStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Listen != DefaultListen || cfg.Store.Driver != DriverSQLite || cfg.Store.DSN != DefaultSQLiteDSN {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if issues := cfg.Validate(); len(issues) != 0 {
		t.Fatalf("expected defaults to validate, got %v", issues)
	}

	bad := Config{
		Store:             StoreConfig{Driver: DriverPostgres},
		Retention:         -time.Hour,
		RetentionSchedule: "nope",
		AuthKeys:          []string{""},
	}
	if issues := bad.Validate(); len(issues) != 4 {
		t.Fatalf("expected 4 issues, got %v", issues)
	}
}
