// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/rs/zerolog"
)

// App owns the long-lived background work (remote probing, discovery, account
// signal) and delegates server management to Manager.
type App struct {
	logger        zerolog.Logger
	manager       Manager
	runtime       *Runtime
	accountSignal os.Signal
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, rt *Runtime) *App {
	return &App{
		logger:        logger,
		manager:       manager,
		runtime:       rt,
		accountSignal: syscall.SIGHUP,
	}
}

// Run starts the background workers and the manager and blocks until ctx is
// cancelled or a fatal error occurs. Component closers run as manager
// shutdown hooks after the workers have stopped.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	workers, wctx := errgroup.WithContext(ctx)
	wctx, stopWorkers := context.WithCancel(wctx)
	defer stopWorkers()

	if a.runtime != nil {
		a.runtime.RegisterShutdownHooks(a.manager)
		if a.runtime.Config.Sync.Enabled {
			workers.Go(func() error { return a.runSync(wctx) })
			if a.accountSignal != nil {
				workers.Go(func() error { return a.watchAccountSignal(wctx) })
			}
		} else {
			a.logger.Info().
				Str(xglog.FieldEvent, "sync.disabled").
				Msg("remote sync disabled, running local-only")
		}
	}

	workersDone := make(chan struct{})
	go func() {
		_ = workers.Wait()
		close(workersDone)
	}()
	// Registered last so it runs first: workers must be gone before the
	// components they use are closed.
	a.manager.RegisterShutdownHook("workers", func(hctx context.Context) error {
		stopWorkers()
		select {
		case <-workersDone:
			return nil
		case <-hctx.Done():
			return hctx.Err()
		}
	})

	err := a.manager.Start(wctx)
	stopWorkers()
	<-workersDone
	if err != nil {
		return err
	}
	return workers.Wait()
}

// runSync probes the remote, waits a bounded time for an account to show up,
// then runs discovery until ctx is done.
func (a *App) runSync(ctx context.Context) error {
	engine := a.runtime.Sync
	if !engine.Start(ctx) {
		wait := a.runtime.Config.Sync.AvailabilityWait
		a.logger.Info().
			Str(xglog.FieldEvent, "sync.waiting").
			Dur("wait", wait).
			Msg("remote store not available yet")
		if !engine.WaitForAvailability(ctx, wait) {
			a.logger.Warn().
				Str(xglog.FieldEvent, "sync.unavailable").
				Msg("remote store still unavailable, discovery idles until the account changes")
		}
	}
	return engine.RunDiscovery(ctx)
}

func (a *App) watchAccountSignal(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, a.accountSignal)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigChan:
			a.logger.Info().
				Str(xglog.FieldEvent, "sync.account_signal").
				Str("signal", a.accountSignal.String()).
				Msg("received account signal, re-probing remote identity")
			a.accountChanged(ctx)
		}
	}
}

// accountChanged re-probes the identity and rescans right away when the
// remote is reachable.
func (a *App) accountChanged(ctx context.Context) {
	engine := a.runtime.Sync
	if !engine.AccountChanged(ctx) {
		return
	}
	if _, err := engine.Discover(ctx); err != nil {
		a.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "sync.discover_failed").
			Msg("discovery after account change failed")
	}
}
