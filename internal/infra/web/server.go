package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain/ports/repository"
	"coursegen-pipeline/internal/infra/logging"
	"coursegen-pipeline/internal/usecase"
)

// Server exposes the orchestrator over HTTP: run submission and lifecycle,
// the plan approval gate, and the usual health/metrics endpoints.
type Server struct {
	runs     usecase.RunManager
	plans    repository.PlanRepository
	contents repository.ContentRepository
	handoffs repository.HandoffRepository
	auth     *AuthManager
	log      *zerolog.Logger
}

func NewServer(
	runs usecase.RunManager,
	plans repository.PlanRepository,
	contents repository.ContentRepository,
	handoffs repository.HandoffRepository,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		runs:     runs,
		plans:    plans,
		contents: contents,
		handoffs: handoffs,
		auth:     auth,
		log:      logger,
	}
}

// Router assembles the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(traceContext)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/api/v1/auth/login", s.loginHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/runs", s.startRunHandler)
		r.Get("/runs/{jobID}", s.runStatusHandler)
		r.Get("/runs/{jobID}/handoffs", s.runHandoffsHandler)
		r.Post("/runs/{jobID}/cancel", s.cancelRunHandler)

		r.Get("/plans/{planID}", s.getPlanHandler)
		r.Get("/plans/{planID}/contents", s.planContentsHandler)
		r.Post("/plans/{planID}/approve", s.approvePlanHandler)
		r.Post("/plans/{planID}/reject", s.rejectPlanHandler)
		r.Post("/plans/{planID}/resume", s.resumeRunHandler)
	})

	return r
}

// traceContext carries the chi request id into the logging context so every
// log line downstream of the handler (run manager, router, executors) tags
// its lines with the originating request.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if id := middleware.GetReqID(req.Context()); id != "" {
			req = req.WithContext(logging.WithTraceID(req.Context(), id))
		}
		next.ServeHTTP(w, req)
	})
}
