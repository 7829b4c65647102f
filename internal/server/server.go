// Package server exposes devkeep's status and operation surface over HTTP
// for dashboard-style consumers. The server only translates requests; action
// composition and policy stay with the caller.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/blackwell-systems/devkeep/internal/backup"
	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/ops"
	"github.com/blackwell-systems/devkeep/internal/probe"
	"github.com/blackwell-systems/devkeep/internal/services"
	"github.com/blackwell-systems/devkeep/internal/store"
)

// probeMemoSize bounds the ad-hoc probe cache. Far more than any realistic
// set of distinct tool names.
const probeMemoSize = 64

// Options wires the server to the rest of the system.
type Options struct {
	Cache   *services.Cache
	Machine *ops.Machine
	Config  *config.Store
	Backups *backup.Manager
	DB      *store.Store
	Prober  probe.Prober

	// Start requests an operation with an action composed by the caller.
	// The server never builds actions itself.
	Start func(kind ops.Kind, params map[string]string) (ops.Record, error)

	// ProbeTTL bounds how long an ad-hoc tool probe result is served from
	// memory before re-probing. Zero means services.DefaultStaleness, so
	// dashboard polling observes the same staleness as the status cache.
	ProbeTTL time.Duration

	Logger *log.Logger
}

// Server is the devkeep HTTP API.
type Server struct {
	opts   Options
	memo   *expirable.LRU[string, probe.Result]
	logger *log.Logger
}

// New returns a server for the given wiring.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	ttl := opts.ProbeTTL
	if ttl <= 0 {
		ttl = services.DefaultStaleness
	}
	return &Server{
		opts:   opts,
		memo:   expirable.NewLRU[string, probe.Result](probeMemoSize, nil, ttl),
		logger: opts.Logger,
	}
}

// Router creates the Chi router with all routes configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/api/status", s.handleStatus)

	r.Route("/api/operations", func(r chi.Router) {
		r.Get("/", s.handleListOperations)
		r.Get("/{kind}", s.handleGetOperation)
		r.Post("/{kind}", s.handleStartOperation)
		r.Post("/{kind}/cancel", s.handleCancelOperation)
		r.Delete("/{kind}", s.handleClearOperation)
	})

	r.Route("/api/config", func(r chi.Router) {
		r.Get("/", s.handleGetConfig)
		r.Put("/", s.handlePutConfig)
	})

	r.Route("/api/backups", func(r chi.Router) {
		r.Get("/", s.handleListBackups)
		r.Post("/", s.handleCreateBackup)
	})

	r.Get("/api/tools/{name}", s.handleProbeTool)
	r.Get("/api/metrics", s.handleListMetrics)
	r.Get("/api/impacts", s.handleListImpacts)

	return r
}

// ListenAndServe runs the API server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Printf("server: listening on http://%s", addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Printf("server: shutting down")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
