// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"time"

	"github.com/ManuGH/savesync/internal/domain/session/model"
)

// EventKind distinguishes observable lifecycle events.
type EventKind int

const (
	EvStateChanged EventKind = iota + 1
	EvTimeout
)

func (k EventKind) String() string {
	switch k {
	case EvStateChanged:
		return "state_changed"
	case EvTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is published on the machine's event stream. For EvTimeout, From holds
// the state that was stuck and To is always StateIdle.
type Event struct {
	Kind   EventKind          `json:"kind"`
	From   model.SessionState `json:"from"`
	To     model.SessionState `json:"to"`
	Action model.Action       `json:"action"`
	At     time.Time          `json:"at"`
}
