package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/procwarden/internal/health"
	"github.com/smazurov/procwarden/internal/logging"
)

// Server exposes /metrics, /healthz, and /logs on a dedicated listener.
type Server struct {
	srv        *http.Server
	lastStatus func() health.Status
	logger     *slog.Logger
}

// NewServer builds the exporter. lastStatus reports the most recent health
// evaluation; /healthz returns 503 when it is critical or error.
func NewServer(addr string, lastStatus func() health.Status, logger *slog.Logger) *Server {
	s := &Server{lastStatus: lastStatus, logger: logger}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/logs", s.handleLogs)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := s.lastStatus()
	code := http.StatusOK
	if status == health.StatusCritical || status == health.StatusError {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"status":"` + string(status) + `"}` + "\n"))
}

// handleLogs serves the recent entries retained in the log ring buffer.
func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	entries := []logging.LogEntry{}
	if buffer := logging.GetBuffer(); buffer != nil {
		if recent := buffer.ReadAll(); recent != nil {
			entries = recent
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.logger.Warn("failed to encode log entries", "error", err)
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics listener starting", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics listener failed", "error", err)
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
