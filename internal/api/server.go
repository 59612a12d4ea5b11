// Package api exposes the HTTP interface for the trend ingestion service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/config"
	"github.com/mediatechlab/trendwatch/internal/metrics"
	"github.com/mediatechlab/trendwatch/internal/pipeline"
	"github.com/mediatechlab/trendwatch/internal/trends"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	// readTimeout bounds the bookkeeping lookups; run submission keeps the
	// request's own deadline because it persists the queued record.
	readTimeout = 3 * time.Second
)

// RunService is the surface the handlers drive. *pipeline.Service satisfies it.
type RunService interface {
	Submit(ctx context.Context, executionDate time.Time) (trends.Run, error)
	GetRun(ctx context.Context, id string) (trends.Run, error)
	ListRuns(ctx context.Context, limit int) ([]trends.Run, error)
}

// Server wires HTTP handlers to the run service.
type Server struct {
	router chi.Router
	runs   RunService
	clock  trends.Clock
	cfg    config.Config
	log    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runs RunService, clock trends.Clock, cfg config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		runs:  runs,
		clock: clock,
		cfg:   cfg,
		log:   log,
	}
	requestTimeout := cfg.RequestTimeout()
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/", s.listRuns)
			r.Get("/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The dataset file and run store are opened lazily; readiness mirrors
	// liveness until a downstream ping is worth the coupling.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRunRequest struct {
	// ExecutionDate is YYYY-MM-DD; the fetch window ends the day before.
	// Empty means "today".
	ExecutionDate string `json:"execution_date"`
}

// submitRun handles POST /v1/runs. It queues a background run and returns
// 202 with the queued record, 409 while another run is active, or 400 for a
// bad date or configuration.
func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	executionDate := s.clock.Now().UTC()
	if req.ExecutionDate != "" {
		parsed, err := time.Parse(trends.DateLayout, req.ExecutionDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("execution_date must be %s", trends.DateLayout))
			return
		}
		executionDate = parsed
	}

	run, err := s.runs.Submit(r.Context(), executionDate)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, trends.ErrInvalidConfig):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.Error("submit run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to submit run")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"run": run})
}

// listRuns handles GET /v1/runs?limit=. Runs come back newest first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		s.log.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []trends.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// getRun handles GET /v1/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, trends.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
