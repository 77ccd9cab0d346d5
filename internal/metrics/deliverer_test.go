package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/promptlens/pkg/models"
)

func TestHTTPDelivererSendsBatch(t *testing.T) {
	var gotPath, gotAuth, gotType, gotVersion string
	var got []models.MetricRecord
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotVersion = r.Header.Get("X-SDK-Version")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	d := NewHTTPDeliverer(server.URL+"/", "pl_test_key", WithHTTPClient(server.Client()))
	batch := []models.MetricRecord{record(1), record(2)}
	if err := d.Deliver(context.Background(), batch); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if gotPath != "/metrics" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer pl_test_key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if !strings.HasPrefix(gotVersion, "go-") {
		t.Errorf("X-SDK-Version = %q", gotVersion)
	}
	if len(got) != 2 || got[1].PromptHash != "hash-2" {
		t.Errorf("body = %+v", got)
	}
}

func TestHTTPDelivererNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad batch", http.StatusBadRequest)
	}))
	defer server.Close()

	d := NewHTTPDeliverer(server.URL, "k", WithSDKVersion("go-test"))
	err := d.Deliver(context.Background(), []models.MetricRecord{record(0)})
	var derr *DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if derr.StatusCode != http.StatusBadRequest || derr.Body != "bad batch" {
		t.Fatalf("DeliveryError = %+v", derr)
	}
}

func TestHTTPDelivererTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewHTTPDeliverer(url, "k").Deliver(context.Background(), []models.MetricRecord{record(0)})
	var derr *DeliveryError
	if !errors.As(err, &derr) || derr.StatusCode != 0 || derr.Err == nil {
		t.Fatalf("expected transport DeliveryError, got %v", err)
	}
}

func TestQueueOverHTTP(t *testing.T) {
	received := make(chan int, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []models.MetricRecord
		_ = json.NewDecoder(r.Body).Decode(&batch)
		received <- len(batch)
	}))
	defer server.Close()

	q := NewQueue(quietConfig(2), NewHTTPDeliverer(server.URL, "k"))
	defer q.Stop()
	_ = q.Enqueue(context.Background(), record(0))
	if err := q.Enqueue(context.Background(), record(1)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if n := <-received; n != 2 {
		t.Fatalf("batch of %d, want 2", n)
	}
}
