// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"time"

	"github.com/ManuGH/savesync/internal/domain/session/model"
)

const (
	DefaultLoadingTimeout = 30 * time.Second
	DefaultExitingTimeout = 10 * time.Second
)

// watchdog holds at most one armed timer. All fields are guarded by Machine.mu.
// The generation counter turns a timer that fired after being superseded into a no-op.
type watchdog struct {
	timer *time.Timer
	gen   uint64
	state model.SessionState
}

func (m *Machine) timeoutFor(s model.SessionState) time.Duration {
	switch s {
	case model.StateLoading:
		return m.cfg.LoadingTimeout
	case model.StateExiting:
		return m.cfg.ExitingTimeout
	default:
		return 0
	}
}

// armLocked replaces any running watchdog with one guarding state s.
func (m *Machine) armLocked(s model.SessionState) {
	m.disarmLocked()
	d := m.timeoutFor(s)
	if d <= 0 {
		return
	}
	m.wd.gen++
	gen := m.wd.gen
	m.wd.state = s
	m.wd.timer = time.AfterFunc(d, func() { m.fire(gen, s) })
}

func (m *Machine) disarmLocked() {
	if m.wd.timer != nil {
		m.wd.timer.Stop()
		m.wd.timer = nil
	}
	m.wd.gen++
	m.wd.state = ""
}

// fire runs on the timer goroutine. It re-acquires the lock and forces a reset
// only if this timer is still the current one and the state has not moved.
func (m *Machine) fire(gen uint64, stuck model.SessionState) {
	m.mu.Lock()
	if m.closed || gen != m.wd.gen || m.state != stuck {
		m.mu.Unlock()
		return
	}
	m.wd.timer = nil
	m.processLocked(model.Reset())
	m.events.Publish(Event{Kind: EvTimeout, From: stuck, To: model.StateIdle, Action: model.Reset(), At: time.Now()})
	for _, fn := range m.onTimeout {
		fn(stuck)
	}
	m.mu.Unlock()

	m.logTimeout(stuck)
}
