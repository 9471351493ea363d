package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"log/slog"

	"github.com/affinidi/webvh-server/internal/config"
	"github.com/affinidi/webvh-server/internal/store"
)

// Server holds the HTTP server dependencies. Route handlers for the
// actual DID/ACL/stats/auth surface are mounted externally via
// routes.Mount, mirroring the teacher's own "mount domain handlers
// after NewServer" pattern — this package would otherwise have to
// import internal/routes, which already imports it the other way.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	Store     store.Store
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates an HTTP server with the ambient middleware stack
// and unauthenticated health/metrics endpoints mounted.
func NewServer(cfg *config.Config, logger *slog.Logger, st store.Store, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		Store:     st,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz probes the store through a cheap, backend-agnostic
// operation (a ContainsKey lookup against the sessions keyspace)
// so readiness reflects whatever backend cfg.StoreBackend selected,
// not just the embedded default.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ks, err := s.Store.Keyspace(ctx, store.KeyspaceSessions)
	if err != nil {
		s.Logger.Error("readiness check: opening sessions keyspace", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "store not ready")
		return
	}
	if _, err := ks.ContainsKey(ctx, "readyz-probe"); err != nil {
		s.Logger.Error("readiness check: store probe failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "store not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Uptime reports how long ago NewServer constructed the server.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startedAt)
}
