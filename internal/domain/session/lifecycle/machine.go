// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package lifecycle holds the session lifecycle state machine: the single
// source of truth for what the session is doing right now.
package lifecycle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/events"
	"github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/metrics"
)

// Config tunes the watchdog. Zero values fall back to the defaults.
type Config struct {
	LoadingTimeout time.Duration
	ExitingTimeout time.Duration
}

// Outcome is the detailed result of a request, including any pending action
// that was replayed as part of the same transition.
type Outcome struct {
	Result   model.TransitionResult
	From     model.SessionState
	To       model.SessionState
	Replayed *model.Action
}

// Machine serializes all lifecycle requests under one mutex. It performs no I/O.
type Machine struct {
	mu      sync.Mutex
	state   model.SessionState
	pending *model.Action
	wd      watchdog
	closed  bool

	cfg       Config
	events    *events.Broadcaster[Event]
	onTimeout []func(stuck model.SessionState)
	logger    zerolog.Logger
}

// New creates a machine in StateIdle.
func New(cfg Config) *Machine {
	if cfg.LoadingTimeout <= 0 {
		cfg.LoadingTimeout = DefaultLoadingTimeout
	}
	if cfg.ExitingTimeout <= 0 {
		cfg.ExitingTimeout = DefaultExitingTimeout
	}
	m := &Machine{
		state:  model.StateIdle,
		cfg:    cfg,
		events: events.NewBroadcaster[Event]("lifecycle"),
		logger: log.WithComponent("lifecycle"),
	}
	metrics.SetSessionState(string(m.state), stateLabels())
	return m
}

// Request submits an action and returns the transition result.
func (m *Machine) Request(a model.Action) model.TransitionResult {
	return m.RequestDetailed(a).Result
}

// RequestDetailed is Request plus the states involved and the replayed action.
// The whole transition, including a pending-action replay, is atomic.
func (m *Machine) RequestDetailed(a model.Action) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Outcome{Result: model.ResultInvalid, From: m.state, To: m.state}
	}
	return m.processLocked(a)
}

// processLocked applies a and then drains the pending action in a loop.
func (m *Machine) processLocked(a model.Action) Outcome {
	from := m.state
	res, replay := m.applyLocked(a)
	out := Outcome{Result: res, From: from, To: m.state}

	for replay != nil {
		next := *replay
		out.Replayed = &next
		res, replay = m.applyLocked(next)
		out.Result = res
		out.To = m.state
	}
	return out
}

// applyLocked performs one table step. It returns the pending action to replay, if any.
func (m *Machine) applyLocked(a model.Action) (model.TransitionResult, *model.Action) {
	from := m.state
	tr, ok := TransitionFor(from, a.Kind)
	if !ok {
		metrics.RecordTransition(string(from), string(from), string(a.Kind), string(model.ResultInvalid))
		m.logger.Debug().
			Str(log.FieldEvent, "lifecycle.invalid").
			Str(log.FieldOldState, string(from)).
			Str(log.FieldAction, a.String()).
			Str("reason", ForbiddenTransitionReason(from, a.Kind)).
			Msg("rejected lifecycle request")
		return model.ResultInvalid, nil
	}

	var replay *model.Action
	switch {
	case tr.Queue:
		queued := a
		m.pending = &queued
	case tr.Replay:
		replay = m.pending
		m.pending = nil
	case a.Kind == model.ActReset:
		m.pending = nil
	}

	m.state = tr.To
	if tr.To.IsTransient() {
		m.armLocked(tr.To)
	} else {
		m.disarmLocked()
	}

	metrics.RecordTransition(string(from), string(tr.To), string(a.Kind), string(tr.Result))
	m.logger.Debug().
		Str(log.FieldEvent, "lifecycle.transition").
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(tr.To)).
		Str(log.FieldAction, a.String()).
		Str(log.FieldResult, string(tr.Result)).
		Msg("lifecycle transition")

	if from != tr.To {
		metrics.SetSessionState(string(tr.To), stateLabels())
		m.events.Publish(Event{Kind: EvStateChanged, From: from, To: tr.To, Action: a, At: time.Now()})
	}
	return tr.Result, replay
}

func (m *Machine) logTimeout(stuck model.SessionState) {
	metrics.RecordWatchdogTimeout(string(stuck))
	m.logger.Error().
		Str(log.FieldEvent, "lifecycle.watchdog_timeout").
		Str(log.FieldOldState, string(stuck)).
		Dur("timeout", m.timeoutFor(stuck)).
		Msg("session stuck in transient state, forced reset")
}

// State returns the current state.
func (m *Machine) State() model.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns a copy of the queued action, if any.
func (m *Machine) Pending() (model.Action, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return model.Action{}, false
	}
	return *m.pending, true
}

// OnTimeout registers fn to run whenever the watchdog forces a reset. Unlike a
// subscription it is never dropped. fn runs with the machine locked, before any
// later request is applied, and must not call back into the machine.
func (m *Machine) OnTimeout(fn func(stuck model.SessionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTimeout = append(m.onTimeout, fn)
}

// Subscribe returns a stream of state changes and watchdog timeouts.
func (m *Machine) Subscribe() *events.Subscription[Event] {
	return m.events.Subscribe(events.DefaultBuffer)
}

// Close stops the watchdog and closes all subscriptions. Later requests are invalid.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.disarmLocked()
	m.events.Close()
}

func stateLabels() []string {
	out := make([]string, len(model.AllStates))
	for i, s := range model.AllStates {
		out[i] = string(s)
	}
	return out
}
