// Package server provides the HTTP server and routing for the workbench.
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

	"github.com/datanger/workbench/internal/events"
	"github.com/datanger/workbench/internal/modules/assistant"
	"github.com/datanger/workbench/internal/modules/audit"
	"github.com/datanger/workbench/internal/modules/drafts"
	"github.com/datanger/workbench/internal/modules/health"
	"github.com/datanger/workbench/internal/modules/instruments"
	"github.com/datanger/workbench/internal/modules/kb"
	"github.com/datanger/workbench/internal/modules/live"
	"github.com/datanger/workbench/internal/modules/marketdata"
	"github.com/datanger/workbench/internal/modules/monitor"
	"github.com/datanger/workbench/internal/modules/news"
	"github.com/datanger/workbench/internal/modules/notes"
	"github.com/datanger/workbench/internal/modules/plans"
	"github.com/datanger/workbench/internal/modules/portfolio"
	"github.com/datanger/workbench/internal/modules/radar"
	"github.com/datanger/workbench/internal/modules/rebalance"
	"github.com/datanger/workbench/internal/modules/risk"
	"github.com/datanger/workbench/internal/modules/scoring"
	"github.com/datanger/workbench/internal/modules/sim"
	"github.com/datanger/workbench/internal/modules/tasks"
	"github.com/datanger/workbench/internal/modules/watchlists"
	"github.com/datanger/workbench/internal/modules/workspace"
	"github.com/datanger/workbench/internal/reliability"
)

// RouteRegistrar is anything that can mount routes on the API router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Config holds everything the server mounts.
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool

	Events *events.Manager

	Instruments *instruments.Handlers
	Marketdata  *marketdata.Handlers
	Scoring     *scoring.Handlers
	Plans       *plans.Handlers
	Notes       *notes.Handlers
	Watchlists  *watchlists.Handlers
	Radar       *radar.Handlers
	Workspace   *workspace.Handlers
	Portfolio   *portfolio.Handlers
	Drafts      *drafts.Handlers
	Rebalance   *rebalance.Handlers
	Risk        *risk.Handlers
	Sim         *sim.Handlers
	Tasks       *tasks.Handlers
	Monitor     *monitor.Handlers
	News        *news.Handlers
	KB          *kb.Handlers
	Assistant   *assistant.Handlers
	Live        *live.Handlers
	Audit       *audit.Handlers
	Health      *health.Handlers
	Backup      *reliability.Handlers
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New creates the HTTP server with all routes mounted.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}
	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes(cfg Config) {
	registrars := []RouteRegistrar{
		cfg.Instruments,
		cfg.Marketdata,
		cfg.Scoring,
		cfg.Plans,
		cfg.Notes,
		cfg.Watchlists,
		cfg.Radar,
		cfg.Workspace,
		cfg.Portfolio,
		cfg.Drafts,
		cfg.Rebalance,
		cfg.Risk,
		cfg.Sim,
		cfg.Tasks,
		cfg.Monitor,
		cfg.News,
		cfg.KB,
		cfg.Assistant,
		cfg.Live,
		cfg.Audit,
		cfg.Health,
		cfg.Backup,
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		for _, registrar := range registrars {
			registrar.RegisterRoutes(r)
		}
	})

	s.router.Handle("/events", events.NewWSHandler(cfg.Events, s.log))
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
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
