// Package server exposes the mission control HTTP API: agent event
// ingestion, sweep triggers, and the dashboard read/write surface.
package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/engine"
)

// Server owns the HTTP listener and its collaborators.
type Server struct {
	db        *sql.DB
	token     string
	sweeps    app.SweepSettings
	chat      app.ChatSettings
	notifier  engine.Notifier
	publisher engine.Publisher

	httpSrv  *http.Server
	listener net.Listener
}

// Config collects the dependencies a Server needs. Token may be empty,
// in which case every authenticated route answers 500 until a secret is
// configured.
type Config struct {
	DB        *sql.DB
	Token     string
	Sweeps    app.SweepSettings
	Chat      app.ChatSettings
	Notifier  engine.Notifier
	Publisher engine.Publisher
}

// New builds a Server with its routes registered.
func New(cfg Config) *Server {
	s := &Server{
		db:        cfg.DB,
		token:     cfg.Token,
		sweeps:    cfg.Sweeps,
		chat:      cfg.Chat,
		notifier:  cfg.Notifier,
		publisher: cfg.Publisher,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.healthHandler)

	mux.HandleFunc("POST /api/agents/events", s.requireToken(s.ingestEventHandler))
	mux.HandleFunc("POST /api/agents/heartbeat", s.requireToken(s.heartbeatHandler))

	mux.HandleFunc("POST /api/dashboard/dispatch-watchdog", s.requireToken(s.watchdogHandler))
	mux.HandleFunc("POST /api/internal/reconcile-agents", s.requireToken(s.reconcileHandler))

	mux.HandleFunc("POST /api/dashboard/tasks", s.requireToken(s.createTaskHandler))
	mux.HandleFunc("POST /api/dashboard/task-dispatch", s.requireToken(s.dispatchTaskHandler))
	mux.HandleFunc("GET /api/kanban", s.requireToken(s.kanbanHandler))
	mux.HandleFunc("POST /api/kanban/move", s.requireToken(s.kanbanMoveHandler))

	mux.HandleFunc("GET /api/dashboard/incidents", s.requireToken(s.listIncidentsHandler))
	mux.HandleFunc("POST /api/dashboard/incidents", s.requireToken(s.upsertIncidentHandler))
	mux.HandleFunc("GET /api/dashboard/incidents/{id}", s.requireToken(s.getIncidentHandler))

	mux.HandleFunc("POST /api/dashboard/cron-sync", s.requireToken(s.cronSyncHandler))
	mux.HandleFunc("GET /api/dashboard/crons", s.requireToken(s.listCronsHandler))
	mux.HandleFunc("GET /api/dashboard/agents", s.requireToken(s.listAgentsHandler))
	mux.HandleFunc("POST /api/dashboard/health", s.requireToken(s.healthCheckHandler))
	mux.HandleFunc("GET /api/dashboard/stats", s.requireToken(s.statsHandler))

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe binds addr and serves until Shutdown. Blocks.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	slog.Info("mission control listening", "addr", ln.Addr().String())
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// dispatchEffects runs post-commit side effects in the request goroutine
// but never lets their outcome reach the response.
func (s *Server) dispatchEffects(ctx context.Context, fx engine.Effects) {
	if fx.Empty() {
		return
	}
	engine.DispatchEffects(ctx, fx, s.notifier, s.publisher)
}
