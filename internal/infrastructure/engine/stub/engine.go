// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stub is a development Engine that keeps a tiny game state in
// memory and persists it as state.json inside the entity bundle. It lets the
// daemon run end to end without a real runtime.
package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/savesync/internal/domain/session/ports"
	xglog "github.com/ManuGH/savesync/internal/log"
)

// StateFile is the file the stub keeps inside every bundle.
const StateFile = "state.json"

var errNothingLoaded = errors.New("stub engine: no save loaded")

// Layout tells the engine where bundles and the global slot live.
type Layout interface {
	Path(entity string) string
	GlobalSlotPath() string
}

// GameState is what the stub persists.
type GameState struct {
	Entity    string    `json:"entity"`
	RunID     string    `json:"runId"`
	Playtime  Duration  `json:"playtime"`
	CreatedAt time.Time `json:"createdAt"`
	SavedAt   time.Time `json:"savedAt"`
}

// Duration marshals as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type globalSlot struct {
	Entity  string    `json:"entity"`
	SavedAt time.Time `json:"savedAt"`
}

// Engine implements ports.Engine.
type Engine struct {
	layout    Layout
	stopDelay time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu        sync.Mutex
	state     *GameState
	resumedAt time.Time
	running   bool
}

var _ ports.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithStopDelay simulates the time the runtime needs to release its files.
func WithStopDelay(d time.Duration) Option { return func(e *Engine) { e.stopDelay = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(layout Layout, opts ...Option) *Engine {
	e := &Engine{layout: layout, now: time.Now, logger: xglog.WithComponent("engine.stub")}
	for _, o := range opts {
		o(e)
	}
	return e
}

// LoadSave reads the bundle's state file. Missing or corrupt files fail the load.
func (e *Engine) LoadSave(entity string) bool {
	st, err := readState(filepath.Join(e.layout.Path(entity), StateFile))
	if err != nil {
		e.logger.Warn().Err(err).Str(xglog.FieldEntity, entity).Msg("stub load failed")
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st.Entity = entity
	e.state = st
	e.running = false
	return true
}

func (e *Engine) HasGlobalSave() bool {
	_, err := os.Stat(e.layout.GlobalSlotPath())
	return err == nil
}

func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNothingLoaded
	}
	e.running = true
	e.resumedAt = e.now()
	return nil
}

// StopAsync halts the run loop. The channel closes after the configured stop delay.
func (e *Engine) StopAsync() <-chan struct{} {
	e.mu.Lock()
	e.accrueLocked()
	e.running = false
	e.mu.Unlock()

	done := make(chan struct{})
	if e.stopDelay <= 0 {
		close(done)
		return done
	}
	time.AfterFunc(e.stopDelay, func() { close(done) })
	return done
}

// SaveTo writes the current state into entity's bundle and records entity in
// the global slot. Without a loaded save a fresh state is created.
func (e *Engine) SaveTo(entity string) bool {
	e.mu.Lock()
	now := e.now().UTC()
	if e.state == nil || e.state.Entity != entity {
		e.state = &GameState{Entity: entity, RunID: uuid.NewString(), CreatedAt: now}
		e.resumedAt = now
	}
	e.accrueLocked()
	e.state.SavedAt = now
	st := *e.state
	e.mu.Unlock()

	if err := e.write(entity, st); err != nil {
		e.logger.Error().Err(err).Str(xglog.FieldEntity, entity).Msg("stub save failed")
		return false
	}
	return true
}

func (e *Engine) ActiveEntityNameFromSave() (string, bool) {
	b, err := os.ReadFile(e.layout.GlobalSlotPath())
	if err != nil {
		return "", false
	}
	var g globalSlot
	if err := json.Unmarshal(b, &g); err != nil || g.Entity == "" {
		return "", false
	}
	return g.Entity, true
}

// State returns a copy of the loaded state.
func (e *Engine) State() (GameState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return GameState{}, false
	}
	return *e.state, true
}

func (e *Engine) accrueLocked() {
	if !e.running || e.state == nil {
		return
	}
	now := e.now()
	e.state.Playtime += Duration(now.Sub(e.resumedAt))
	e.resumedAt = now
}

func (e *Engine) write(entity string, st GameState) error {
	dir := e.layout.Path(entity)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(dir, StateFile), b, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	g, err := json.Marshal(globalSlot{Entity: entity, SavedAt: st.SavedAt})
	if err != nil {
		return err
	}
	return renameio.WriteFile(e.layout.GlobalSlotPath(), g, 0o600)
}

func readState(path string) (*GameState, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st GameState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &st, nil
}
