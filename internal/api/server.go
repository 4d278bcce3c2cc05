// Package api serves the tenant search/fetch/browse/sync surface over
// HTTP JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	apperrors "git.home.luguber.info/inful/docsearch/internal/errors"
	"git.home.luguber.info/inful/docsearch/internal/metrics"
	"git.home.luguber.info/inful/docsearch/internal/tenant"
)

// Server hosts the tenant API.
type Server struct {
	addr     string
	router   *chi.Mux
	server   *http.Server
	registry *tenant.Registry
	logger   *slog.Logger
}

// NewServer wires routes over the tenant registry. registry must not be
// nil; promRegistry may be nil to disable the /metrics endpoint.
func NewServer(addr string, registry *tenant.Registry, promRegistry *prom.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:     addr,
		router:   chi.NewRouter(),
		registry: registry,
		logger:   logger,
	}
	s.setupRoutes(promRegistry)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(promRegistry *prom.Registry) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealthz)
	if promRegistry != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics.HTTPHandler(promRegistry))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tenants/status", s.handleTenantsStatus)
		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Post("/search", s.handleSearch)
			r.Post("/fetch", s.handleFetch)
			r.Get("/browse", s.handleBrowse)
			r.Post("/sync/trigger", s.handleSyncTrigger)
			r.Get("/sync/status", s.handleSyncStatus)
		})
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("api server listening", slog.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTenantsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tenants": s.registry.AggregateHealth(r.Context()),
	})
}

// resolveTenant maps the URL parameter to a runtime or writes the
// unknown-tenant error.
func (s *Server) resolveTenant(w http.ResponseWriter, r *http.Request) (*tenant.Runtime, bool) {
	codename := chi.URLParam(r, "tenant")
	rt, err := s.registry.Get(codename)
	if err != nil {
		status := http.StatusInternalServerError
		if apperrors.IsNotFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return nil, false
	}
	return rt, true
}

// errorResponse is the generic failure body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeBody parses a JSON request body into dst. An empty body leaves
// dst at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
