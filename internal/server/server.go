// Package server exposes the analyzer over a small HTTP API: a health
// probe, the latest merged report, and an endpoint to trigger a new run.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/pgscope/internal/analysis/model"
	"github.com/koustreak/pgscope/internal/errs"
	"github.com/koustreak/pgscope/internal/logger"
)

// Runner executes one analysis run. Implemented by analysis.Analyzer.
type Runner interface {
	Run(ctx context.Context) (*model.Report, error)
}

// Server serves the report API.
type Server struct {
	runner Runner
	log    *logger.Logger

	mu      sync.RWMutex
	latest  *model.Report
	running bool
}

// New builds a Server around a Runner.
func New(runner Runner, log *logger.Logger) *Server {
	return &Server{runner: runner, log: log}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/report", s.handleReport)
	r.Post("/api/run", s.handleRun)

	return r
}

// ListenAndServe blocks serving the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.With().Str("addr", addr).Logger().Info("report server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// SetLatest seeds the server with a report produced before it started.
func (s *Server) SetLatest(report *model.Report) {
	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// handleRun triggers a synchronous analysis. Concurrent triggers are
// rejected; one run at a time keeps the database load predictable.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	report, err := s.runner.Run(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errs.IsNotFound(err) {
			status = http.StatusUnprocessableEntity
		}
		s.log.ErrorWith("analysis run failed", err, nil)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   report.Metadata.RunID,
		"tables":   report.Summary.TotalTables,
		"warnings": len(report.Metadata.Warnings),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
