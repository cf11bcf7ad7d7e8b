// SPDX-License-Identifier: MIT

// Package daemon wires the savesync components and owns their lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/savesync/internal/api"
	"github.com/ManuGH/savesync/internal/api/middleware"
	"github.com/ManuGH/savesync/internal/config"
	"github.com/ManuGH/savesync/internal/domain/session/cloudsync"
	"github.com/ManuGH/savesync/internal/domain/session/coordinator"
	"github.com/ManuGH/savesync/internal/domain/session/lifecycle"
	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/domain/session/store"
	"github.com/ManuGH/savesync/internal/health"
	"github.com/ManuGH/savesync/internal/infrastructure/engine/stub"
	"github.com/ManuGH/savesync/internal/infrastructure/remote/fsremote"
	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/savestore"
	"github.com/ManuGH/savesync/internal/telemetry"
)

// Runtime holds the constructed components of one daemon instance.
type Runtime struct {
	Config      config.AppConfig
	Telemetry   *telemetry.Provider
	Local       *savestore.Store
	Meta        ports.MetadataStore
	Remote      *fsremote.Store
	Sync        *cloudsync.Engine
	Machine     *lifecycle.Machine
	Engine      ports.Engine
	Coordinator *coordinator.Coordinator
	Health      *health.Manager
	API         *api.Server

	closers []namedHook
}

// Bootstrap constructs every component from cfg. Nothing is started: the
// remote is not probed and no listener is opened. On error the components
// built so far are closed again.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (rt *Runtime, err error) {
	logger := xglog.WithComponent("daemon")
	rt = &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	rt.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.addCloser("telemetry", rt.Telemetry.Shutdown)

	if rt.Local, err = savestore.Open(cfg.SavesDir()); err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}

	if rt.Meta, err = store.OpenMetadataStore(cfg.Metadata.Backend, cfg.DataDir); err != nil {
		return nil, fmt.Errorf("metadata store: %w", err)
	}
	rt.addCloser("metadata", func(context.Context) error { return rt.Meta.Close() })

	rt.Remote, err = fsremote.Open(fsremote.Options{
		Root:             cfg.Remote.Root,
		MaterializeDelay: cfg.Remote.MaterializeDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("remote store: %w", err)
	}
	rt.addCloser("remote", func(context.Context) error { return rt.Remote.Close() })

	rt.Sync, err = cloudsync.New(cloudsync.Config{
		Device:               cfg.Sync.Device,
		BundlePattern:        cfg.Sync.BundlePattern,
		DownloadTimeout:      cfg.Sync.DownloadTimeout,
		PollInterval:         cfg.Sync.PollInterval,
		DeleteGateTimeout:    cfg.Sync.DeleteGateTimeout,
		GatePolicy:           cloudsync.GatePolicy(cfg.Sync.DeleteGatePolicy),
		DiscoveryInterval:    cfg.Sync.DiscoveryInterval,
		DiscoveryMinInterval: cfg.Sync.DiscoveryMinInterval,
		AvailabilityPoll:     cfg.Sync.AvailabilityPoll,
	}, rt.Remote, rt.Local, rt.Meta)
	if err != nil {
		return nil, fmt.Errorf("sync engine: %w", err)
	}
	rt.addCloser("sync", func(context.Context) error { return rt.Sync.Close() })

	rt.Machine = lifecycle.New(lifecycle.Config{
		LoadingTimeout: cfg.Lifecycle.LoadingTimeout,
		ExitingTimeout: cfg.Lifecycle.ExitingTimeout,
	})
	rt.addCloser("lifecycle", func(context.Context) error {
		rt.Machine.Close()
		return nil
	})

	if rt.Engine, err = newEngine(cfg.Engine, rt.Local); err != nil {
		return nil, err
	}

	rt.Coordinator, err = coordinator.New(coordinator.Config{
		Machine:     rt.Machine,
		Engine:      rt.Engine,
		Local:       rt.Local,
		Meta:        rt.Meta,
		Sync:        rt.Sync,
		SyncEnabled: cfg.Sync.Enabled,
		Setup:       entitySetup(rt.Meta),
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	rt.addCloser("coordinator", func(context.Context) error { return rt.Coordinator.Close() })

	rt.Health = health.NewManager(cfg.Version)
	rt.Health.RegisterChecker(health.NewWritableDirChecker("saves_dir", cfg.SavesDir()))
	rt.Health.RegisterChecker(health.NewStateChecker(func() string {
		return string(rt.Machine.State())
	}, string(model.StateError)))
	if cfg.Sync.Enabled {
		rt.Health.RegisterChecker(health.NewRemoteChecker(rt.Sync.Available))
		rt.Health.RegisterChecker(health.NewFailuresChecker(func() int { return len(rt.Sync.Failures()) }))
	}

	stack := middleware.StackConfig{
		EnableMetrics:      true,
		EnableLogging:      true,
		RateLimitPerMinute: cfg.API.RateLimit,
	}
	if cfg.Telemetry.Enabled {
		stack.TracingService = cfg.Log.Service
	}
	rt.API = api.New(api.Deps{
		Session:   rt.Coordinator,
		Sync:      rt.Sync,
		Lifecycle: rt.Machine,
		Health:    rt.Health,
		Version:   cfg.Version,
		Stack:     stack,
	})

	logger.Info().
		Str(xglog.FieldEvent, "daemon.bootstrapped").
		Str("data_dir", cfg.DataDir).
		Str("remote_root", cfg.Remote.Root).
		Str("metadata_backend", cfg.Metadata.Backend).
		Bool("sync_enabled", cfg.Sync.Enabled).
		Msg("components wired")
	return rt, nil
}

func newEngine(cfg config.EngineConfig, local *savestore.Store) (ports.Engine, error) {
	switch cfg.Mode {
	case "", config.EngineModeStub:
		return stub.New(local, stub.WithStopDelay(cfg.StopDelay)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngineMode, cfg.Mode)
	}
}

// entitySetup reports what the metadata store knows about an entity before
// its session is announced as started.
func entitySetup(meta ports.MetadataStore) coordinator.EntitySetup {
	return func(ctx context.Context, entity string) error {
		md, err := meta.Load(ctx, entity)
		if err != nil {
			return err
		}
		logger := xglog.WithComponentFromContext(ctx, "daemon")
		ev := logger.Debug().Str(xglog.FieldEvent, "session.setup").Str(xglog.FieldEntity, entity)
		if md != nil {
			ev = ev.Time("last_saved_at", md.LastSavedAt)
		}
		ev.Msg("entity preferences loaded")
		return nil
	}
}

func (rt *Runtime) addCloser(name string, fn ShutdownHook) {
	rt.closers = append(rt.closers, namedHook{name: name, hook: fn})
}

// RegisterShutdownHooks hands the component closers to m in construction
// order, so the manager releases them in reverse.
func (rt *Runtime) RegisterShutdownHooks(m Manager) {
	for _, c := range rt.closers {
		m.RegisterShutdownHook(c.name, c.hook)
	}
	rt.closers = nil
}

// Close releases every component that has not been handed to a Manager.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.closers[i].name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
