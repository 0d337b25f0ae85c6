package metrics

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/procwarden/internal/events"
	"github.com/smazurov/procwarden/internal/health"
	"github.com/smazurov/procwarden/internal/logging"
)

func TestHealthzReflectsStatus(t *testing.T) {
	status := health.StatusHealthy
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(":0", func() health.Status { return status }, logger)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("body = %q, want status name", w.Body.String())
	}

	status = health.StatusCritical
	w = httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("critical status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpointExports(t *testing.T) {
	RecordRestart("health")
	SetHostSample(12.5, 40.0, 55.0)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(":0", func() health.Status { return health.StatusHealthy }, logger)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, name := range []string{
		"procwarden_supervisor_restarts_total",
		"procwarden_host_cpu_percent",
		"procwarden_health_status",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}

func TestLogsEndpointServesRecentEntries(t *testing.T) {
	logging.Initialize(logging.Config{Level: "info", Format: "text"})
	logging.GetLogger("exporter-test").Info("buffer entry for the logs endpoint")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(":0", func() health.Status { return health.StatusHealthy }, logger)

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	w := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var entries []logging.LogEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decoding /logs body: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Message == "buffer entry for the logs endpoint" && e.Module == "exporter-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("logged entry missing from /logs response (%d entries)", len(entries))
	}
}

func TestObserveUpdatesHealthGauge(t *testing.T) {
	bus := events.New()
	unsub := Observe(bus)
	defer unsub()

	bus.Publish(events.HealthEvaluatedEvent{Status: "degraded"})

	// Dispatch is asynchronous; poll the gauge through the scrape output.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		srv := NewServer(":0", func() health.Status { return health.StatusHealthy }, logger)
		w := httptest.NewRecorder()
		srv.srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if strings.Contains(w.Body.String(), "procwarden_health_status 1") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("health status gauge never reached 1 after degraded event")
}

func TestStatusValueMapping(t *testing.T) {
	cases := map[string]float64{
		"healthy":  0,
		"degraded": 1,
		"critical": 2,
		"error":    3,
		"bogus":    3,
	}
	for in, want := range cases {
		if got := statusValue(in); got != want {
			t.Errorf("statusValue(%q) = %v, want %v", in, got, want)
		}
	}
}
