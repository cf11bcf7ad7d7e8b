// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package coordinator sequences engine load/save/stop calls against the
// lifecycle machine and the sync engine. It is the only caller of the Engine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/savesync/internal/domain/session/lifecycle"
	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/domain/session/ports"
	"github.com/ManuGH/savesync/internal/fsutil"
	xglog "github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/metrics"
	"github.com/ManuGH/savesync/internal/telemetry"
)

var (
	// ErrSaveFailed is returned by ExitToMenu when the engine could not write
	// the save. The session still exits.
	ErrSaveFailed = errors.New("engine save failed")
	// ErrSuperseded is returned by a start that a newer start request replaced
	// while it was still loading. The newer request owns the session.
	ErrSuperseded = errors.New("start superseded by a newer request")
)

// SyncEngine is the part of the sync engine the coordinator drives.
type SyncEngine interface {
	Available() bool
	IsCloudOnly(ctx context.Context, entity string) bool
	Download(ctx context.Context, entity string) (string, error)
	UploadInBackground(entity string)
}

// EntitySetup loads per-entity preferences once the save is loaded and before
// the session is reported as started.
type EntitySetup func(ctx context.Context, entity string) error

// Config wires a Coordinator.
type Config struct {
	Machine *lifecycle.Machine
	Engine  ports.Engine
	Local   ports.LocalStore
	Meta    ports.MetadataStore
	// Sync may be nil when remote sync is disabled.
	Sync        SyncEngine
	SyncEnabled bool
	Setup       EntitySetup
	Now         func() time.Time
}

// Snapshot is a consistent view for presentation.
type Snapshot struct {
	State   model.SessionState `json:"state"`
	Active  string             `json:"activeEntity,omitempty"`
	Pending *model.Action      `json:"pending,omitempty"`
}

// Coordinator owns ActiveEntity and the engine executor.
type Coordinator struct {
	machine     *lifecycle.Machine
	engine      ports.Engine
	local       ports.LocalStore
	meta        ports.MetadataStore
	sync        SyncEngine
	syncEnabled bool
	setup       EntitySetup
	now         func() time.Time

	exec   *engineExecutor
	logger zerolog.Logger
	tracer trace.Tracer

	mu     sync.Mutex
	active string

	// startMu orders start requests against gameStarted and loadFailed.
	// startGen is bumped by every start the machine lets proceed; a flow
	// whose generation is no longer current leaves the session alone.
	startMu  sync.Mutex
	startGen uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates a coordinator and starts observing watchdog timeouts.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Machine == nil || cfg.Engine == nil || cfg.Local == nil || cfg.Meta == nil {
		return nil, fmt.Errorf("coordinator: machine, engine, local and meta are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		machine:     cfg.Machine,
		engine:      cfg.Engine,
		local:       cfg.Local,
		meta:        cfg.Meta,
		sync:        cfg.Sync,
		syncEnabled: cfg.SyncEnabled && cfg.Sync != nil,
		setup:       cfg.Setup,
		now:         cfg.Now,
		exec:        newEngineExecutor(),
		logger:      xglog.WithComponent("coordinator"),
		tracer:      telemetry.Tracer("savesync/coordinator"),
		bgCtx:       bgCtx,
		bgCancel:    cancel,
	}

	c.machine.OnTimeout(c.onWatchdogTimeout)
	return c, nil
}

// Close waits for background exits and stops the engine executor.
func (c *Coordinator) Close() error {
	c.bgCancel()
	c.bg.Wait()
	c.exec.close()
	return nil
}

// Active returns the active entity, or "".
func (c *Coordinator) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Coordinator) setActive(entity string) {
	c.mu.Lock()
	c.active = entity
	c.mu.Unlock()
}

// clearActive clears the active entity if it is still entity.
func (c *Coordinator) clearActive(entity string) {
	c.mu.Lock()
	if c.active == entity {
		c.active = ""
	}
	c.mu.Unlock()
}

// takeActive clears the active entity and returns what it was.
func (c *Coordinator) takeActive() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.active
	c.active = ""
	return prev
}

// request applies a to the machine. A start that proceeds, directly or as
// the replayed pending action, opens a new start generation.
func (c *Coordinator) request(a model.Action) (lifecycle.Outcome, uint64) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	out := c.machine.RequestDetailed(a)
	if out.Result == model.ResultProceed && (isStart(a) || out.Replayed != nil) {
		c.startGen++
	}
	return out, c.startGen
}

func isStart(a model.Action) bool {
	return a.Kind == model.ActNewGame || a.Kind == model.ActContinueGame
}

func (c *Coordinator) current(gen uint64) bool {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	return gen == c.startGen
}

// setActiveFor makes entity active unless gen was superseded.
func (c *Coordinator) setActiveFor(gen uint64, entity string) bool {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if gen != c.startGen {
		return false
	}
	c.setActive(entity)
	return true
}

// Snapshot returns state, active entity and pending action.
func (c *Coordinator) Snapshot() Snapshot {
	s := Snapshot{State: c.machine.State(), Active: c.Active()}
	if p, ok := c.machine.Pending(); ok {
		s.Pending = &p
	}
	return s
}

// onWatchdogTimeout runs with the machine locked, so no start can slip in
// between the forced reset and the clear.
func (c *Coordinator) onWatchdogTimeout(stuck model.SessionState) {
	prev := c.takeActive()
	metrics.RecordSessionFlow("watchdog", "reset")
	c.logger.Warn().
		Str(xglog.FieldEvent, "session.watchdog_cleared").
		Str(xglog.FieldOldState, string(stuck)).
		Str(xglog.FieldEntity, prev).
		Msg("watchdog reset the session, active entity cleared")
}

func validateName(op, name string) error {
	if err := fsutil.ValidateEntityName(name); err != nil {
		return ports.Wrap(op, name, nil, fmt.Errorf("%w: %v", ports.ErrInvalidName, err))
	}
	return nil
}

func rejected(op string, a model.Action, out lifecycle.Outcome) error {
	return ports.Wrap(op, a.Entity, nil,
		fmt.Errorf("%w: %s from %s (%s)", ports.ErrInvalidTransition, a.Kind, out.From, out.Result))
}

// StartNewGame begins a new session for name.
func (c *Coordinator) StartNewGame(ctx context.Context, name string) (err error) {
	ctx, span := c.tracer.Start(ctx, "session.new_game", trace.WithAttributes(telemetry.EntityAttributes(name, "", "")...))
	defer func() { telemetry.EndSpan(span, err); c.recordFlow("new_game", err) }()

	ctx = xglog.ContextWithFlow(ctx, "new_game")
	if err := validateName("new_game", name); err != nil {
		return err
	}
	return c.handleStart(ctx, "new_game", model.NewGame(name))
}

// ContinueGame resumes the named entity, downloading it first when it only
// exists remotely.
func (c *Coordinator) ContinueGame(ctx context.Context, name string) (err error) {
	ctx, span := c.tracer.Start(ctx, "session.continue_game", trace.WithAttributes(telemetry.EntityAttributes(name, "", "")...))
	defer func() { telemetry.EndSpan(span, err); c.recordFlow("continue_game", err) }()

	ctx = xglog.ContextWithFlow(ctx, "continue_game")
	if err := validateName("continue_game", name); err != nil {
		return err
	}
	return c.handleStart(ctx, "continue_game", model.ContinueGame(name))
}

// ContinueMostRecent continues the local entity saved last. Ties go to the
// lexicographically smallest name. Without local entities the legacy global
// slot is consulted.
func (c *Coordinator) ContinueMostRecent(ctx context.Context) error {
	name, err := c.MostRecent(ctx)
	if err != nil {
		c.recordFlow("continue_most_recent", err)
		return err
	}
	return c.ContinueGame(ctx, name)
}

// MostRecent picks the entity ContinueMostRecent would continue.
func (c *Coordinator) MostRecent(ctx context.Context) (string, error) {
	names, err := c.local.List()
	if err != nil {
		return "", err
	}
	var (
		best   string
		bestAt time.Time
		found  bool
	)
	for _, n := range names {
		var at time.Time
		m, err := c.meta.Load(ctx, n)
		if err != nil {
			return "", err
		}
		if m != nil {
			at = m.LastSavedAt
		}
		if !found || at.After(bestAt) || (at.Equal(bestAt) && n < best) {
			best, bestAt, found = n, at, true
		}
	}
	if found {
		return best, nil
	}

	hasGlobal, err := call(ctx, c.exec, "has_global_save", c.engine.HasGlobalSave)
	if err != nil {
		return "", err
	}
	if hasGlobal {
		type named struct {
			name string
			ok   bool
		}
		res, err := call(ctx, c.exec, "active_entity_name", func() named {
			n, ok := c.engine.ActiveEntityNameFromSave()
			return named{n, ok}
		})
		if err != nil {
			return "", err
		}
		if res.ok && res.name != "" {
			return res.name, nil
		}
	}
	return "", ports.ErrNoSaves
}

func (c *Coordinator) handleStart(ctx context.Context, op string, a model.Action) error {
	out, gen := c.request(a)
	switch out.Result {
	case model.ResultProceed:
		return c.runStart(ctx, gen, a)
	case model.ResultExitFirst:
		c.exitInBackground()
		return ports.Wrap(op, a.Entity, nil, ports.ErrExitInProgress)
	default:
		return rejected(op, a, out)
	}
}

func (c *Coordinator) runStart(ctx context.Context, gen uint64, a model.Action) error {
	switch a.Kind {
	case model.ActNewGame:
		return c.runNewGame(ctx, gen, a.Entity)
	case model.ActContinueGame:
		return c.runContinue(ctx, gen, a.Entity)
	default:
		return fmt.Errorf("%w: %s is not a start action", ports.ErrInvalidTransition, a.Kind)
	}
}

func (c *Coordinator) runNewGame(ctx context.Context, gen uint64, name string) error {
	if !c.setActiveFor(gen, name) {
		return c.superseded(ctx, "new_game", name)
	}
	c.runSetup(ctx, name)
	return c.markStarted(ctx, "new_game", gen, name)
}

// engineStep is the result of an engine call that is skipped once its start
// was superseded.
type engineStep[T any] struct {
	val        T
	superseded bool
}

func (c *Coordinator) runContinue(ctx context.Context, gen uint64, name string) error {
	entity := name
	if c.syncEnabled && c.sync.IsCloudOnly(ctx, name) {
		resolved, err := c.sync.Download(ctx, name)
		if err != nil {
			return c.loadFailed(ctx, gen, name, ports.Wrap("continue_game", name, ports.ErrEngineLoadFailure, err))
		}
		entity = resolved
	}

	// The generation is checked on the executor so a superseded load never
	// runs after the newer one.
	loaded, err := call(ctx, c.exec, "load_save", func() engineStep[bool] {
		if !c.current(gen) {
			return engineStep[bool]{superseded: true}
		}
		return engineStep[bool]{val: c.engine.LoadSave(entity)}
	})
	switch {
	case err != nil:
		return c.loadFailed(ctx, gen, entity, ports.Wrap("continue_game", entity, ports.ErrEngineLoadFailure, err))
	case loaded.superseded:
		return c.superseded(ctx, "continue_game", entity)
	case !loaded.val:
		return c.loadFailed(ctx, gen, entity, ports.Wrap("continue_game", entity, nil, ports.ErrEngineLoadFailure))
	}

	if !c.setActiveFor(gen, entity) {
		return c.superseded(ctx, "continue_game", entity)
	}
	resumed, err := call(ctx, c.exec, "resume", func() engineStep[error] {
		if !c.current(gen) {
			return engineStep[error]{superseded: true}
		}
		return engineStep[error]{val: c.engine.Resume()}
	})
	if err == nil {
		if resumed.superseded {
			return c.superseded(ctx, "continue_game", entity)
		}
		err = resumed.val
	}
	if err != nil {
		return c.loadFailed(ctx, gen, entity, ports.Wrap("continue_game", entity, ports.ErrEngineLoadFailure, err))
	}

	c.runSetup(ctx, entity)
	return c.markStarted(ctx, "continue_game", gen, entity)
}

func (c *Coordinator) runSetup(ctx context.Context, entity string) {
	if c.setup == nil {
		return
	}
	if err := c.setup(ctx, entity); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldEntity, entity).Msg("entity setup failed, continuing with defaults")
	}
}

// markStarted reports gameStarted. If the machine moved on meanwhile (e.g. the
// watchdog fired) the engine is stopped and the start is reported as failed.
// A superseded start touches neither.
func (c *Coordinator) markStarted(ctx context.Context, op string, gen uint64, entity string) error {
	a := model.GameStarted()
	c.startMu.Lock()
	if gen != c.startGen {
		c.startMu.Unlock()
		return c.superseded(ctx, op, entity)
	}
	out := c.machine.RequestDetailed(a)
	c.startMu.Unlock()

	if out.Result == model.ResultProceed {
		logger := xglog.WithContext(ctx, c.logger)
		logger.Info().
			Str(xglog.FieldEvent, "session.started").
			Str(xglog.FieldEntity, entity).
			Msg("session started")
		return nil
	}
	c.clearActive(entity)
	_ = c.stopEngine(ctx)
	return rejected(op, a, out)
}

func (c *Coordinator) loadFailed(ctx context.Context, gen uint64, entity string, err error) error {
	c.startMu.Lock()
	current := gen == c.startGen
	if current {
		c.machine.Request(model.LoadFailed(err.Error()))
		c.clearActive(entity)
	}
	c.startMu.Unlock()

	logger := xglog.WithContext(ctx, c.logger)
	if !current {
		logger.Warn().Err(err).
			Str(xglog.FieldEvent, "session.load_failed").
			Str(xglog.FieldEntity, entity).
			Msg("superseded start failed to load")
		return errors.Join(err, ports.Wrap("start", entity, nil, ErrSuperseded))
	}
	logger.Error().Err(err).
		Str(xglog.FieldEvent, "session.load_failed").
		Str(xglog.FieldEntity, entity).
		Msg("failed to load save")
	return err
}

func (c *Coordinator) superseded(ctx context.Context, op, entity string) error {
	logger := xglog.WithContext(ctx, c.logger)
	logger.Info().
		Str(xglog.FieldEvent, "session.start_superseded").
		Str(xglog.FieldEntity, entity).
		Msg("start superseded by a newer request")
	return ports.Wrap(op, entity, nil, ErrSuperseded)
}

// ExitToMenu saves and stops the running session, uploads it in the
// background when sync is available, and executes any queued start action.
func (c *Coordinator) ExitToMenu(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, "session.exit")
	defer func() { telemetry.EndSpan(span, err); c.recordFlow("exit", err) }()
	ctx = xglog.ContextWithFlow(ctx, "exit")

	if c.Active() == "" {
		return ports.ErrNoActiveEntity
	}
	a := model.ExitGame()
	out := c.machine.RequestDetailed(a)
	if out.Result != model.ResultProceed {
		return rejected("exit", a, out)
	}
	return c.runExit(ctx)
}

func (c *Coordinator) exitInBackground() {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if err := c.runExit(xglog.ContextWithFlow(c.bgCtx, "exit")); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Str(xglog.FieldEvent, "session.exit_failed").Msg("queued exit failed")
		}
	}()
}

func (c *Coordinator) runExit(ctx context.Context) error {
	entity := c.Active()
	logger := xglog.WithContext(ctx, c.logger)
	var saveErr error

	if entity != "" {
		saved, err := call(ctx, c.exec, "save_to", func() bool { return c.engine.SaveTo(entity) })
		switch {
		case err != nil:
			return err
		case !saved:
			saveErr = ports.Wrap("exit", entity, nil, ErrSaveFailed)
			logger.Error().Err(saveErr).Str(xglog.FieldEntity, entity).Msg("save on exit failed")
		default:
			if err := c.recordSaved(ctx, entity); err != nil {
				logger.Warn().Err(err).Str(xglog.FieldEntity, entity).Msg("failed to record save time")
			}
		}

		if err := c.stopEngine(ctx); err != nil {
			return err
		}

		if saveErr == nil && c.syncEnabled && c.sync.Available() {
			c.sync.UploadInBackground(entity)
		}
	}

	c.clearActive(entity)
	out, gen := c.request(model.GameExited())
	logger.Info().
		Str(xglog.FieldEvent, "session.exited").
		Str(xglog.FieldEntity, entity).
		Str(xglog.FieldResult, string(out.Result)).
		Msg("session exited")

	if out.Replayed != nil {
		replayed := *out.Replayed
		if out.Result != model.ResultProceed {
			return errors.Join(saveErr, rejected("replay", replayed, out))
		}
		logger.Info().Str(xglog.FieldAction, replayed.String()).Msg("running queued action")
		return errors.Join(saveErr, c.runStart(ctx, gen, replayed))
	}
	if out.Result != model.ResultProceed {
		return errors.Join(saveErr, rejected("exit", model.GameExited(), out))
	}
	return saveErr
}

func (c *Coordinator) recordSaved(ctx context.Context, entity string) error {
	m, err := c.meta.Load(ctx, entity)
	if err != nil {
		return err
	}
	rec := model.EntitySaveMetadata{Name: entity}
	if m != nil {
		rec = *m
	}
	rec.LastSavedAt = c.now().UTC()
	return c.meta.Save(ctx, rec)
}

// stopEngine asks the engine to stop and waits until it released its files.
func (c *Coordinator) stopEngine(ctx context.Context) error {
	stopped, err := call(ctx, c.exec, "stop_async", c.engine.StopAsync)
	if err != nil {
		return err
	}
	if stopped == nil {
		return nil
	}
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset forces the machine back to Idle, stops a running engine and clears
// the active entity it found. A session started after the reset keeps its own.
func (c *Coordinator) Reset(ctx context.Context) error {
	entity := c.Active()
	c.machine.Request(model.Reset())
	c.clearActive(entity)
	if entity != "" {
		if err := c.stopEngine(ctx); err != nil {
			return err
		}
	}
	c.recordFlow("reset", nil)
	c.logger.Info().Str(xglog.FieldEvent, "session.reset").Str(xglog.FieldEntity, entity).Msg("session reset")
	return nil
}

func (c *Coordinator) recordFlow(flow string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrExitInProgress):
		outcome = "queued"
	case errors.Is(err, ErrSuperseded):
		outcome = "superseded"
	case errors.Is(err, ports.ErrInvalidTransition):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	metrics.RecordSessionFlow(flow, outcome)
}
