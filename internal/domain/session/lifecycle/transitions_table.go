// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/savesync/internal/domain/session/model"

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From   model.SessionState
	Action model.ActionKind
	To     model.SessionState
	Result model.TransitionResult
	// Queue stores the requesting action as the pending action.
	Queue bool
	// Replay re-evaluates the pending action after landing.
	Replay bool
}

var transitionsTable = []Transition{
	// Start path
	{From: model.StateIdle, Action: model.ActContinueGame, To: model.StateLoading, Result: model.ResultProceed},
	{From: model.StateIdle, Action: model.ActNewGame, To: model.StateLoading, Result: model.ResultProceed},
	{From: model.StateLoading, Action: model.ActGameStarted, To: model.StatePlaying, Result: model.ResultProceed},
	{From: model.StateLoading, Action: model.ActLoadFailed, To: model.StateError, Result: model.ResultFailed},

	// Retry while still loading is an idempotent restart signal
	{From: model.StateLoading, Action: model.ActContinueGame, To: model.StateLoading, Result: model.ResultProceed},
	{From: model.StateLoading, Action: model.ActNewGame, To: model.StateLoading, Result: model.ResultProceed},

	// Manual retry from error
	{From: model.StateError, Action: model.ActContinueGame, To: model.StateLoading, Result: model.ResultProceed},
	{From: model.StateError, Action: model.ActNewGame, To: model.StateLoading, Result: model.ResultProceed},

	// Exit path
	{From: model.StatePlaying, Action: model.ActExitGame, To: model.StateExiting, Result: model.ResultProceed},
	{From: model.StatePlaying, Action: model.ActContinueGame, To: model.StateExiting, Result: model.ResultExitFirst, Queue: true},
	{From: model.StatePlaying, Action: model.ActNewGame, To: model.StateExiting, Result: model.ResultExitFirst, Queue: true},
	{From: model.StateExiting, Action: model.ActGameExited, To: model.StateIdle, Result: model.ResultProceed, Replay: true},

	// Reset from anywhere
	{From: model.StateIdle, Action: model.ActReset, To: model.StateIdle, Result: model.ResultProceed},
	{From: model.StateLoading, Action: model.ActReset, To: model.StateIdle, Result: model.ResultProceed},
	{From: model.StatePlaying, Action: model.ActReset, To: model.StateIdle, Result: model.ResultProceed},
	{From: model.StateExiting, Action: model.ActReset, To: model.StateIdle, Result: model.ResultProceed},
	{From: model.StateError, Action: model.ActReset, To: model.StateIdle, Result: model.ResultProceed},
}

// TransitionFor returns the allowed transition for a given state+action.
func TransitionFor(from model.SessionState, kind model.ActionKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Action == kind {
			return tr, true
		}
	}
	return Transition{}, false
}
