package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prefork/internal/api"
	"prefork/internal/config"
	"prefork/internal/models"
	"prefork/internal/supervisor"
)

func newTestRouter(workers int) *api.Router {
	cfg := config.Default()
	cfg.Workers = workers
	return api.NewRouter(supervisor.New(cfg))
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(2)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestReadyEndpointDegraded(t *testing.T) {
	// No workers have been started, so the pool is below strength.
	r := newTestRouter(2)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/ready status = %d, want 503", rec.Code)
	}
}

func TestWorkersEndpoint(t *testing.T) {
	r := newTestRouter(3)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("/api/workers status = %d, want 200", rec.Code)
	}

	var workers []models.Worker
	if err := json.NewDecoder(rec.Body).Decode(&workers); err != nil {
		t.Fatalf("decode workers: %v", err)
	}
	if len(workers) != 3 {
		t.Fatalf("got %d workers, want 3", len(workers))
	}
	for i, w := range workers {
		if w.Slot != i+1 {
			t.Errorf("worker[%d].Slot = %d, want %d", i, w.Slot, i+1)
		}
		if w.Status != models.StatusStopped {
			t.Errorf("worker %d status = %q before start", w.Slot, w.Status)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	r := newTestRouter(1)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("/api/status status = %d, want 200", rec.Code)
	}

	var status struct {
		LaunchID     string `json:"launch_id"`
		ReadyWorkers int    `json:"ready_workers"`
		Ready        bool   `json:"ready"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.LaunchID == "" {
		t.Error("launch_id is empty")
	}
	if status.Ready || status.ReadyWorkers != 0 {
		t.Errorf("unexpected readiness before start: %+v", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(1)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "prefork_worker_crashes_total") {
		t.Error("metrics output missing prefork_worker_crashes_total")
	}
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter(1)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
