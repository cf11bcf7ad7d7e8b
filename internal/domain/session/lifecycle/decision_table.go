// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/savesync/internal/domain/session/model"

const (
	ForbiddenRequiresLoading = "requires_loading"
	ForbiddenRequiresPlaying = "requires_playing"
	ForbiddenRequiresExiting = "requires_exiting"
	ForbiddenAlreadyInState  = "already_in_state"
	ForbiddenExitInProgress  = "exit_in_progress"
)

// Decision records whether an action is allowed in a state and why it is forbidden.
type Decision struct {
	Allowed bool
	Reason  string
}

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

// decisionTable defines an explicit decision for every State×Action combination.
var decisionTable = map[model.SessionState]map[model.ActionKind]Decision{
	model.StateIdle: {
		model.ActContinueGame: allowed(),
		model.ActNewGame:      allowed(),
		model.ActGameStarted:  forbid(ForbiddenRequiresLoading),
		model.ActExitGame:     forbid(ForbiddenRequiresPlaying),
		model.ActGameExited:   forbid(ForbiddenRequiresExiting),
		model.ActLoadFailed:   forbid(ForbiddenRequiresLoading),
		model.ActReset:        allowed(),
	},
	model.StateLoading: {
		model.ActContinueGame: allowed(),
		model.ActNewGame:      allowed(),
		model.ActGameStarted:  allowed(),
		model.ActExitGame:     forbid(ForbiddenRequiresPlaying),
		model.ActGameExited:   forbid(ForbiddenRequiresExiting),
		model.ActLoadFailed:   allowed(),
		model.ActReset:        allowed(),
	},
	model.StatePlaying: {
		model.ActContinueGame: allowed(),
		model.ActNewGame:      allowed(),
		model.ActGameStarted:  forbid(ForbiddenAlreadyInState),
		model.ActExitGame:     allowed(),
		model.ActGameExited:   forbid(ForbiddenRequiresExiting),
		model.ActLoadFailed:   forbid(ForbiddenRequiresLoading),
		model.ActReset:        allowed(),
	},
	model.StateExiting: {
		model.ActContinueGame: forbid(ForbiddenExitInProgress),
		model.ActNewGame:      forbid(ForbiddenExitInProgress),
		model.ActGameStarted:  forbid(ForbiddenRequiresLoading),
		model.ActExitGame:     forbid(ForbiddenAlreadyInState),
		model.ActGameExited:   allowed(),
		model.ActLoadFailed:   forbid(ForbiddenRequiresLoading),
		model.ActReset:        allowed(),
	},
	model.StateError: {
		model.ActContinueGame: allowed(),
		model.ActNewGame:      allowed(),
		model.ActGameStarted:  forbid(ForbiddenRequiresLoading),
		model.ActExitGame:     forbid(ForbiddenRequiresPlaying),
		model.ActGameExited:   forbid(ForbiddenRequiresExiting),
		model.ActLoadFailed:   forbid(ForbiddenAlreadyInState),
		model.ActReset:        allowed(),
	},
}

// DecisionFor returns the explicit decision for state×action.
func DecisionFor(from model.SessionState, kind model.ActionKind) (Decision, bool) {
	m, ok := decisionTable[from]
	if !ok {
		return Decision{}, false
	}
	d, ok := m[kind]
	return d, ok
}

// ForbiddenTransitionReason documents why an action is rejected in a state.
func ForbiddenTransitionReason(from model.SessionState, kind model.ActionKind) string {
	d, ok := DecisionFor(from, kind)
	if !ok {
		return "unknown_action"
	}
	if d.Allowed {
		return ""
	}
	return d.Reason
}
