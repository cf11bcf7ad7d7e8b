// SPDX-License-Identifier: MIT

// Package api is the HTTP control surface of the daemon: session commands,
// the save list, conflict resolution, sync failures and a live event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/savesync/internal/api/middleware"
	"github.com/ManuGH/savesync/internal/domain/session/cloudsync"
	"github.com/ManuGH/savesync/internal/domain/session/coordinator"
	"github.com/ManuGH/savesync/internal/domain/session/lifecycle"
	"github.com/ManuGH/savesync/internal/events"
	"github.com/ManuGH/savesync/internal/health"
)

// Session is the coordinator surface the API drives.
type Session interface {
	Snapshot() coordinator.Snapshot
	StartNewGame(ctx context.Context, name string) error
	ContinueGame(ctx context.Context, name string) error
	ContinueMostRecent(ctx context.Context) error
	ExitToMenu(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Sync is the sync engine surface the API drives.
type Sync interface {
	Available() bool
	Status(ctx context.Context) ([]cloudsync.EntityStatus, error)
	Delete(ctx context.Context, entity string, scope cloudsync.Scope) error
	Download(ctx context.Context, entity string) (string, error)
	Discover(ctx context.Context) (int, error)
	DetectConflicts(ctx context.Context, entity string) ([]cloudsync.ConflictRecord, error)
	ResolveConflict(ctx context.Context, entity string, policy cloudsync.Policy) ([]string, error)
	Failures() []cloudsync.SyncFailure
	Retry(ctx context.Context, id string) error
	Dismiss(id string) error
	RetryAll(ctx context.Context) error
	Subscribe() *events.Subscription[cloudsync.SyncEvent]
}

// LifecycleEvents streams lifecycle transitions.
type LifecycleEvents interface {
	Subscribe() *events.Subscription[lifecycle.Event]
}

// Deps wires a Server.
type Deps struct {
	Session   Session
	Sync      Sync
	Lifecycle LifecycleEvents
	// Health backs /readyz; nil disables the probe.
	Health    *health.Manager
	Version   string
	Stack     middleware.StackConfig
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// Server owns the router.
type Server struct {
	session   Session
	sync      Sync
	lifecycle LifecycleEvents
	health    *health.Manager
	version   string
	heartbeat time.Duration
	started   time.Time
	router    *chi.Mux
}

// New builds the router with the canonical middleware stack.
func New(d Deps) *Server {
	if d.Heartbeat <= 0 {
		d.Heartbeat = 15 * time.Second
	}
	s := &Server{
		session:   d.Session,
		sync:      d.Sync,
		lifecycle: d.Lifecycle,
		health:    d.Health,
		version:   d.Version,
		heartbeat: d.Heartbeat,
		started:   time.Now(),
	}
	s.router = s.routes(d.Stack)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(stack middleware.StackConfig) *chi.Mux {
	r := middleware.NewRouter(stack)

	r.Get("/healthz", s.handleHealth)
	if s.health != nil {
		r.Get("/readyz", s.health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleSession)
			r.Post("/new", s.handleNewGame)
			r.Post("/continue", s.handleContinue)
			r.Post("/exit", s.handleExit)
			r.Post("/reset", s.handleReset)
		})
		r.Route("/saves", func(r chi.Router) {
			r.Get("/", s.handleListSaves)
			r.Route("/{name}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteSave)
				r.Post("/download", s.handleDownload)
				r.Get("/conflicts", s.handleListConflicts)
				r.Post("/conflicts", s.handleResolveConflict)
			})
		})
		r.Route("/sync", func(r chi.Router) {
			r.Post("/discover", s.handleDiscover)
			r.Get("/failures", s.handleListFailures)
			r.Post("/failures/retry", s.handleRetryAll)
			r.Post("/failures/{id}/retry", s.handleRetryFailure)
			r.Delete("/failures/{id}", s.handleDismissFailure)
		})
		r.Get("/events", s.handleEvents)
	})
	return r
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version,omitempty"`
	State           string `json:"state"`
	RemoteAvailable bool   `json:"remoteAvailable"`
	Uptime          string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		Version:         s.version,
		State:           string(s.session.Snapshot().State),
		RemoteAvailable: s.sync.Available(),
		Uptime:          time.Since(s.started).Truncate(time.Second).String(),
	})
}
