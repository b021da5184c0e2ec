package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashmesh/arbcore/internal/config"
)

// snapshotInterval is how often the hub pushes a full refreshed snapshot to
// connected clients between opportunity events.
const snapshotInterval = 5 * time.Second

// Server runs the read-only dashboard HTTP/WebSocket API (spec's ambient
// "observability consumers" surface, §2).
type Server struct {
	cfg      config.DashboardConfig
	provider MetricsProvider
	fullCfg  config.Config
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds the dashboard server, wiring its HTTP routes but not
// starting it.
func NewServer(cfg config.DashboardConfig, provider MetricsProvider, fullCfg config.Config, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, fullCfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		provider: provider,
		fullCfg:  fullCfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "dashboard-server"),
	}
}

// Start runs the WebSocket hub, the periodic snapshot broadcaster, and the
// HTTP server, blocking until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.broadcastSnapshots()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server error: %w", err)
	}
	return nil
}

// BroadcastOpportunity pushes a single freshly-detected opportunity to every
// connected client immediately, rather than waiting for the next periodic
// snapshot tick.
func (s *Server) BroadcastOpportunity(o OpportunityView) {
	s.hub.BroadcastEvent(NewOpportunityEvent(o))
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// broadcastSnapshots periodically pushes a fresh snapshot to every
// connected client. The detector has no event-stream abstraction of its
// own (unlike the teacher's engine.DashboardEvents()), so polling a
// bounded interval is the simplest faithful translation of "dashboard
// stays live" without inventing a pub-sub layer purely for the UI.
func (s *Server) broadcastSnapshots() {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.hub.BroadcastEvent(NewSnapshotEvent(BuildSnapshot(s.provider, s.fullCfg)))
	}
}
