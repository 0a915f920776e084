// Package server exposes flyer scoring over HTTP. Scoring runs stream their
// progress to the caller as server-sent events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/config"
	"github.com/odgsully/renoscore/internal/cost"
	"github.com/odgsully/renoscore/internal/model"
	"github.com/odgsully/renoscore/internal/monitoring"
	"github.com/odgsully/renoscore/internal/pipeline"
	"github.com/odgsully/renoscore/internal/store"
)

// Runner runs one scoring pipeline. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input, progress chan<- model.ProgressEvent) (*model.PipelineResult, error)
}

// Deps are the collaborators a Server needs. Store may be nil, which turns
// off persistence and the batch routes. Breakers may be nil.
type Deps struct {
	Runner        Runner
	Store         store.Store
	Calculator    *cost.Calculator
	Breakers      monitoring.BreakerReporter
	Provider      string
	Model         string
	PagesPerChunk int
}

// Server routes HTTP requests to scoring and batch handlers.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	router chi.Router
	log    *zap.Logger
}

// New builds a Server and its routes.
func New(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  zap.L().With(zap.String("component", "server")),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Batch-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/score", s.handleScore)
		r.Post("/estimate", s.handleEstimate)
		r.Get("/providers", s.handleProviders)

		r.Group(func(r chi.Router) {
			r.Use(s.requireStore)
			r.Get("/batches", s.handleListBatches)
			r.Post("/batches/recover", s.handleRecover)
			r.Get("/batches/{batchID}", s.handleGetBatch)
			r.Get("/clients/{clientID}/latest", s.handleLatestBatch)
			r.Get("/metrics", s.handleMetrics)
		})
	})
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	s.log.Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}
