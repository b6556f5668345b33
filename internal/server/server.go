// Package server exposes the planner over HTTP: plan creation, batch
// evaluation, opportunity identification, streaming sequence generation, and
// health.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/cache"
	"github.com/aristath/helmsman/internal/evaluation"
	"github.com/aristath/helmsman/internal/opportunities"
	"github.com/aristath/helmsman/internal/planner"
	"github.com/aristath/helmsman/internal/resilience"
	"github.com/aristath/helmsman/internal/sequences"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Config holds server wiring. Coordinator, evaluator, and the registries may
// be nil in single-role deployments; routes for missing services return 503.
type Config struct {
	Port           int
	Log            zerolog.Logger
	Coordinator    *planner.Coordinator
	Evaluation     *evaluation.Service
	Opportunities  *opportunities.Service
	Sequences      *sequences.Service
	Breakers       *resilience.BreakerRegistry
	CacheStore     *cache.Store
	RequestTimeout time.Duration
}

// Server is the HTTP front of one planner, evaluator, or generator process.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	coordinator   *planner.Coordinator
	evaluation    *evaluation.Service
	opportunities *opportunities.Service
	sequences     *sequences.Service
	breakers      *resilience.BreakerRegistry
	cacheStore    *cache.Store
	startupTime   time.Time
}

// New creates the HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		log:           cfg.Log.With().Str("component", "server").Logger(),
		coordinator:   cfg.Coordinator,
		evaluation:    cfg.Evaluation,
		opportunities: cfg.Opportunities,
		sequences:     cfg.Sequences,
		breakers:      cfg.Breakers,
		cacheStore:    cfg.CacheStore,
		startupTime:   time.Now(),
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	s.setupMiddleware(timeout)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Write timeout must outlast a full planning run and the
		// generate-sequences stream.
		WriteTimeout: timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(timeout time.Duration) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(timeout))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/create-plan", s.handleCreatePlan)
		r.Post("/evaluate-sequences", s.handleEvaluateSequences)
		r.Post("/identify-opportunities", s.handleIdentifyOpportunities)
		r.Post("/generate-sequences", s.handleGenerateSequences)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
