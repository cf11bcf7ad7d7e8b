// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "fmt"

// SessionState is the lifecycle of the single interactive session.
// Exactly one value is held by the lifecycle machine at any time.
type SessionState string

const (
	StateIdle    SessionState = "IDLE"
	StateLoading SessionState = "LOADING"
	StatePlaying SessionState = "PLAYING"
	StateExiting SessionState = "EXITING"
	StateError   SessionState = "ERROR"
)

// AllStates lists every session state in declaration order.
var AllStates = []SessionState{StateIdle, StateLoading, StatePlaying, StateExiting, StateError}

// IsTransient reports whether the state is guarded by the watchdog.
func (s SessionState) IsTransient() bool {
	return s == StateLoading || s == StateExiting
}

// AllowsActiveEntity reports whether an active entity may be set in this state.
func (s SessionState) AllowsActiveEntity() bool {
	switch s {
	case StateLoading, StatePlaying, StateExiting:
		return true
	default:
		return false
	}
}

// ActionKind identifies a lifecycle request.
type ActionKind string

const (
	ActContinueGame ActionKind = "continue_game"
	ActNewGame      ActionKind = "new_game"
	ActGameStarted  ActionKind = "game_started"
	ActExitGame     ActionKind = "exit_game"
	ActGameExited   ActionKind = "game_exited"
	ActLoadFailed   ActionKind = "load_failed"
	ActReset        ActionKind = "reset"
)

// AllActionKinds lists every action kind in declaration order.
var AllActionKinds = []ActionKind{
	ActContinueGame, ActNewGame, ActGameStarted, ActExitGame, ActGameExited, ActLoadFailed, ActReset,
}

// IsStart reports whether the action asks for a session to be started.
func (k ActionKind) IsStart() bool {
	return k == ActContinueGame || k == ActNewGame
}

// Action is a request submitted to the lifecycle machine.
// Entity is set for continue/new, Reason for load failures.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Entity string     `json:"entity,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

func ContinueGame(entity string) Action { return Action{Kind: ActContinueGame, Entity: entity} }
func NewGame(entity string) Action      { return Action{Kind: ActNewGame, Entity: entity} }
func GameStarted() Action               { return Action{Kind: ActGameStarted} }
func ExitGame() Action                  { return Action{Kind: ActExitGame} }
func GameExited() Action                { return Action{Kind: ActGameExited} }
func LoadFailed(reason string) Action   { return Action{Kind: ActLoadFailed, Reason: reason} }
func Reset() Action                     { return Action{Kind: ActReset} }

func (a Action) String() string {
	switch {
	case a.Entity != "":
		return fmt.Sprintf("%s(%s)", a.Kind, a.Entity)
	case a.Reason != "":
		return fmt.Sprintf("%s(%s)", a.Kind, a.Reason)
	default:
		return string(a.Kind)
	}
}

// TransitionResult is the outcome of a lifecycle request.
type TransitionResult string

const (
	ResultProceed   TransitionResult = "proceed"
	ResultExitFirst TransitionResult = "exit_first"
	ResultFailed    TransitionResult = "failed"
	ResultInvalid   TransitionResult = "invalid"
)
