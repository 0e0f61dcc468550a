// Package api exposes the admin HTTP surface: health, metrics and task CRUD.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/scraper"
)

// Tasks is the scheduler surface the API manages.
type Tasks interface {
	AddTask(ctx context.Context, kind models.TaskKind, params map[string]any, scheduleTime *time.Time, recurrence models.Recurrence) (string, error)
	Get(id string) (models.ScheduledTask, bool)
	List() []models.ScheduledTask
	Delete(ctx context.Context, id string) error
}

// StatsSource reports fetch-layer state for /healthz.
type StatsSource interface {
	Stats() scraper.Stats
}

// HealthCheck probes a backing service.
type HealthCheck func(ctx context.Context) error

// Server holds the dependencies for the HTTP server.
type Server struct {
	tasks      Tasks
	stats      StatsSource
	metrics    *scraper.Metrics
	checks     map[string]HealthCheck
	router     http.Handler
	httpServer *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithHealthCheck adds a named probe to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// NewServer wires the router. stats and metrics may be nil.
func NewServer(addr string, tasks Tasks, stats StatsSource, m *scraper.Metrics, opts ...Option) *Server {
	s := &Server{
		tasks:   tasks,
		stats:   stats,
		metrics: m,
		checks:  map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
