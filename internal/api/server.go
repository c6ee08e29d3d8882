// Package api exposes the HTTP trigger interface for the bot. External
// schedulers (Cloud Scheduler, a cron sidecar) POST to /v1/run instead
// of shelling out to the CLI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/everylotbot/everylot/internal/bot"
	"github.com/everylotbot/everylot/internal/everylot"
	"github.com/everylotbot/everylot/internal/metrics"
)

// A full run can sit through image fetch, publish retries and commit;
// the handler deadline has to outlast all of them.
const requestTimeout = 120 * time.Second

// Runner executes one publication run.
type Runner interface {
	Run(ctx context.Context, params bot.RunParams) (bot.Outcome, error)
}

// Config controls Server behavior.
type Config struct {
	// APIKey guards the /v1 endpoints when non-empty.
	APIKey string
}

// Server wires HTTP handlers to the publication controller.
type Server struct {
	router chi.Router
	runner Runner
	store  everylot.Store
	cfg    Config
	logger *zap.Logger

	// runMu serializes runs within this process. The store's
	// compare-and-set remains the cross-process guard.
	runMu sync.Mutex
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, store everylot.Store, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{
		runner: runner,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/run", s.triggerRun)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// No warm-up phase; the process is ready once it serves.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type runRequest struct {
	DryRun    bool  `json:"dry_run"`
	LotID     int64 `json:"lot_id"`
	SkipImage bool  `json:"skip_image"`
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	out, err := s.runner.Run(r.Context(), bot.RunParams{
		DryRun:    req.DryRun,
		LotID:     req.LotID,
		SkipImage: req.SkipImage,
	})
	if err != nil {
		s.logger.Error("Run failed", zap.Error(err))
		writeError(w, statusForRunError(err), err.Error())
		return
	}

	status := http.StatusOK
	if out.DuplicatePost {
		status = http.StatusConflict
	}
	writeJSON(w, status, out)
}

// statusForRunError maps a failed run to an HTTP status. Upstream feed
// trouble is a gateway problem; everything else is ours.
func statusForRunError(err error) int {
	switch {
	case errors.Is(err, everylot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, everylot.ErrAlreadyPosted):
		return http.StatusConflict
	case everylot.IsAuthFailure(err), everylot.IsTransient(err), everylot.IsRejected(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
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
