// Package server exposes the engine over HTTP: scramble/restore for the
// document pipeline, pattern and profile CRUD for the admin UI, and the
// websocket event feed for the dashboard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/catalog"
	"github.com/veilhq/veil/internal/config"
	"github.com/veilhq/veil/internal/engine"
	"github.com/veilhq/veil/internal/events"
	"github.com/veilhq/veil/internal/logger"
	"github.com/veilhq/veil/internal/pattern"
	"github.com/veilhq/veil/internal/profile"
)

// Server is the HTTP front of the scramble/restore engine.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	engine   *engine.Engine
	registry *pattern.Registry
	profiles *profile.Manager
	catalog  *catalog.Catalog // nil when no database is configured
	hub      *events.Hub
	router   *mux.Router
	server   *http.Server
	limiters *limiterPool
	stop     chan struct{}
}

// New assembles the HTTP server around the engine and its collaborators.
func New(cfg *config.Config, eng *engine.Engine, registry *pattern.Registry, profiles *profile.Manager, cat *catalog.Catalog, hub *events.Hub, log *logger.Logger) *Server {
	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		engine:   eng,
		registry: registry,
		profiles: profiles,
		catalog:  cat,
		hub:      hub,
		router:   mux.NewRouter(),
		limiters: newLimiterPool(cfg.RateLimit.RequestsPerSec, cfg.RateLimit.Burst),
		stop:     make(chan struct{}),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.Events.Enabled {
		s.router.HandleFunc("/ws", s.hub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	// Pipeline boundary.
	api.HandleFunc("/scramble", s.handleScramble).Methods("POST")
	api.HandleFunc("/restore", s.handleRestore).Methods("POST")

	// Admin: patterns.
	api.HandleFunc("/patterns", s.handleListPatterns).Methods("GET")
	api.HandleFunc("/patterns", s.handleUpsertPattern).Methods("POST")
	api.HandleFunc("/patterns/export", s.handleExportPatterns).Methods("GET")
	api.HandleFunc("/patterns/import", s.handleImportPatterns).Methods("POST")
	api.HandleFunc("/patterns/test", s.handleTestPatterns).Methods("POST")
	api.HandleFunc("/patterns/{id}", s.handleTogglePattern).Methods("PATCH")
	api.HandleFunc("/patterns/{id}", s.handleDeletePattern).Methods("DELETE")

	// Admin: profiles.
	api.HandleFunc("/profiles", s.handleListProfiles).Methods("GET")
	api.HandleFunc("/profiles/{name}", s.handleGetProfile).Methods("GET")
	api.HandleFunc("/profiles/{name}", s.handlePutProfile).Methods("PUT")
	api.HandleFunc("/profiles/{name}", s.handleDeleteProfile).Methods("DELETE")

	// Admin: sessions.
	api.HandleFunc("/sessions", s.handleRecentSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
}

// Start starts the HTTP server and the event hub.
func (s *Server) Start() error {
	s.logger.Info("Starting veil server",
		zap.Int("port", s.config.Server.Port),
		zap.String("vault_backend", s.config.Vault.Backend),
		zap.Bool("catalog_enabled", s.catalog != nil),
		zap.Bool("events_enabled", s.config.Events.Enabled),
	)
	if s.config.Events.Enabled {
		go s.hub.Run()
	}
	s.limiters.startCleanup(s.stop)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping veil server")
	close(s.stop)
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	set := s.registry.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":             "veil",
		"version":          Version,
		"patterns":         len(set.All()),
		"pattern_version":  set.Version(),
		"profiles":         len(s.profiles.List()),
		"active_sessions":  s.engine.SessionCount(),
		"vault_backend":    s.config.Vault.Backend,
		"events_enabled":   s.config.Events.Enabled,
		"catalog_enabled":  s.catalog != nil,
		"rate_limit_rps":   s.config.RateLimit.RequestsPerSec,
		"rate_limit_burst": s.config.RateLimit.Burst,
	})
}

// Version is stamped by the build.
var Version = "0.1.0"
