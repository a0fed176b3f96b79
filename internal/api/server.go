// Package api exposes the HTTP interface of the service: client management,
// file imports with live progress streams, and the aggregation queries that
// back the dashboards.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/importer"
	"github.com/mkessler/crawlscope/internal/metrics"
	"github.com/mkessler/crawlscope/internal/progress"
	"github.com/mkessler/crawlscope/internal/stats"
	"github.com/mkessler/crawlscope/internal/store"
)

const queryTimeout = 10 * time.Second

// Pinger reports backing-store connectivity for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config tunes the HTTP layer.
//   - UploadDir: directory uploaded files are spooled to (default os temp).
//   - MaxUploadBytes: multipart upload cap (default 1 GiB).
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
}

// Server wires the HTTP handlers to the importer, the stats service and the
// progress hub.
type Server struct {
	router   chi.Router
	cfg      Config
	clients  store.ClientRepository
	jobs     store.JobRepository
	importer *importer.Manager
	stats    *stats.Service
	hub      *progress.Hub
	pinger   Pinger
	clk      store.Clock
	ids      store.IDGenerator
	logger   *zap.Logger
}

// NewServer builds the router. pinger may be nil when there is no external
// store to probe.
func NewServer(
	cfg Config,
	clients store.ClientRepository,
	jobs store.JobRepository,
	imp *importer.Manager,
	statsSvc *stats.Service,
	hub *progress.Hub,
	pinger Pinger,
	clk store.Clock,
	ids store.IDGenerator,
	logger *zap.Logger,
) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 1 << 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		clients:  clients,
		jobs:     jobs,
		importer: imp,
		stats:    statsSvc,
		hub:      hub,
		pinger:   pinger,
		clk:      clk,
		ids:      ids,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/clients", func(r chi.Router) {
			r.Post("/", s.createClient)
			r.Get("/", s.listClients)
			r.Route("/{client_id}", func(r chi.Router) {
				r.Get("/", s.getClient)
				r.Delete("/", s.deleteClient)
			})
		})
		r.Route("/imports", func(r chi.Router) {
			r.Post("/{client_id}/logs", s.uploadLogs)
			r.Post("/{client_id}/reference", s.uploadReference)
			r.Get("/{client_id}", s.listImports)
			r.Delete("/jobs/{job_id}", s.deleteJob)
			r.Get("/jobs/{job_id}/progress", s.streamProgress)
		})
		r.Route("/stats", func(r chi.Router) {
			r.Get("/bot-families", s.botFamilies)
			r.Get("/page-types", s.pageTypes)
			r.Route("/{client_id}", func(r chi.Router) {
				r.Get("/dashboard", s.dashboard)
				r.Get("/pages", s.pages)
				r.Get("/orphan-pages", s.orphanPages)
				r.Get("/compare", s.comparePeriods)
				r.Get("/frequency", s.frequency)
				r.Get("/date-range", s.dateRange)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("readiness probe failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write json response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
