// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 30 * time.Second

// ShutdownHook releases one component during graceful shutdown.
type ShutdownHook func(ctx context.Context) error

// Manager owns the control API server and the ordered teardown of the
// components behind it.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type manager struct {
	serverCfg ServerConfig
	deps      Deps
	logger    zerolog.Logger

	mu            sync.Mutex
	apiServer     *http.Server
	shutdownHooks []namedHook
	started       bool
	stopping      bool
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager validates deps and returns a Manager that has not bound yet.
func NewManager(serverCfg ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("daemon: invalid dependencies: %w", err)
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = defaultShutdownTimeout
	}

	return &manager{
		serverCfg: serverCfg,
		deps:      deps,
		logger:    deps.Logger.With().Str(xglog.FieldComponent, "manager").Logger(),
	}, nil
}

// Start binds the control API, serves it, and blocks until ctx is cancelled
// or the server fails. Either way Shutdown runs before Start returns, so the
// registered hooks also run when binding fails.
func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("daemon: nil start context")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("daemon: manager already started")
	}
	m.started = true
	m.mu.Unlock()

	ln, err := net.Listen("tcp", m.serverCfg.ListenAddr)
	if err != nil {
		err = fmt.Errorf("control API listen %s: %w", m.serverCfg.ListenAddr, err)
		return errors.Join(err, m.shutdownDetached(ctx))
	}

	srv := &http.Server{
		Handler:           m.deps.APIHandler,
		ReadHeaderTimeout: m.serverCfg.ReadHeaderTimeout,
	}
	m.mu.Lock()
	m.apiServer = srv
	m.mu.Unlock()

	m.logger.Info().
		Str(xglog.FieldEvent, "manager.start").
		Str("addr", ln.Addr().String()).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Msg("control API listening")

	served := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			served <- err
		}
		close(served)
	}()

	select {
	case err, failed := <-served:
		if !failed {
			return m.shutdownDetached(ctx)
		}
		m.logger.Error().Err(err).Str(xglog.FieldEvent, "api.server.failed").Msg("control API failed, shutting down")
		return errors.Join(fmt.Errorf("control API: %w", err), m.shutdownDetached(ctx))
	case <-ctx.Done():
		m.logger.Info().Str(xglog.FieldEvent, "manager.signal").Msg("shutdown requested")
		return m.shutdownDetached(ctx)
	}
}

// shutdownDetached runs Shutdown on a context that survives the cancellation
// of parent but is bounded by the shutdown timeout.
func (m *manager) shutdownDetached(parent context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.serverCfg.ShutdownTimeout)
	defer cancel()
	return m.Shutdown(ctx)
}

// Shutdown stops the control API, then runs the hooks newest first. It is
// idempotent; later calls return nil.
func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("daemon: nil shutdown context")
	}

	m.mu.Lock()
	switch {
	case m.stopping:
		m.mu.Unlock()
		return nil
	case !m.started:
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	srv := m.apiServer
	hooks := slices.Clone(m.shutdownHooks)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("control API shutdown: %w", err))
		}
	}
	errs = append(errs, m.runHooks(ctx, hooks)...)

	if len(errs) > 0 {
		m.logger.Error().Int("error_count", len(errs)).Str(xglog.FieldEvent, "manager.stopped").Msg("daemon stopped with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Str(xglog.FieldEvent, "manager.stopped").Msg("daemon stopped")
	return nil
}

func (m *manager) runHooks(ctx context.Context, hooks []namedHook) []error {
	var errs []error
	for _, h := range slices.Backward(hooks) {
		start := time.Now()
		err := h.hook(ctx)
		ev := m.logger.Debug()
		if err != nil {
			ev = m.logger.Error().Err(err)
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
		ev.Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook finished")
	}
	return errs
}

// RegisterShutdownHook adds a hook. Hooks run newest first.
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
