package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/id/uuid"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/middleware"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/orchestrator"
)

const defaultListLimit = 20

// RunController is the part of the orchestrator the API drives.
type RunController interface {
	Start(ctx context.Context) (string, error)
	Status() orchestrator.Status
}

// Options tunes the server.
type Options struct {
	// APIKey guards POST routes when set.
	APIKey string
	// RunContext is the parent of runs started over HTTP. Cancelling it
	// stops them; request contexts never do.
	RunContext context.Context
	Timeout    time.Duration
}

// Server wires HTTP handlers to the run orchestrator and run history.
type Server struct {
	router chi.Router
	runner RunController
	runs   catalog.RunStore
	runCtx context.Context
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner RunController, runs catalog.RunStore, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RunContext == nil {
		opts.RunContext = context.Background()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	s := &Server{
		runner: runner,
		runs:   runs,
		runCtx: opts.RunContext,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/runs", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.TimeoutHandler(next, opts.Timeout, "request timed out")
		})
		r.With(middleware.APIKey(opts.APIKey)).Post("/", s.startRun)
		r.Get("/", s.listRuns)
		r.Get("/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) startRun(w http.ResponseWriter, _ *http.Request) {
	runID, err := s.runner.Start(s.runCtx)
	if err != nil {
		if errors.Is(err, catalog.ErrRunInProgress) {
			middleware.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to start run", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	w.Header().Set("Location", "/v1/runs/"+runID)
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []catalog.RunSummary{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := uuid.Validate(runID); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "malformed run id")
		return
	}
	summary, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, catalog.ErrRunNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("failed to load run", zap.String("run_id", runID), zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}
