// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudsync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/savesync/internal/metrics"
)

// uploadGate is the set of entities with an upload in flight. Entries are
// reference counted so overlapping uploads of one entity keep it gated.
type uploadGate struct {
	mu      sync.Mutex
	entries map[string]*gateEntry
}

type gateEntry struct {
	refs int
	done chan struct{}
}

func newUploadGate() *uploadGate {
	return &uploadGate{entries: make(map[string]*gateEntry)}
}

func (g *uploadGate) enter(entity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[entity]
	if !ok {
		e = &gateEntry{done: make(chan struct{})}
		g.entries[entity] = e
	}
	e.refs++
	metrics.SetUploadGateSize(len(g.entries))
}

func (g *uploadGate) leave(entity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[entity]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		close(e.done)
		delete(g.entries, entity)
	}
	metrics.SetUploadGateSize(len(g.entries))
}

func (g *uploadGate) contains(entity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entries[entity]
	return ok
}

func (g *uploadGate) names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.entries))
	for n := range g.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// wait blocks until entity is not gated. It returns false when timeout
// elapses first and ctx.Err() when ctx is done.
func (g *uploadGate) wait(ctx context.Context, entity string, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		g.mu.Lock()
		e, ok := g.entries[entity]
		g.mu.Unlock()
		if !ok {
			return true, nil
		}
		select {
		case <-e.done:
			// A new upload may have entered meanwhile; check again.
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// entityLocks serializes uploads of the same entity.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func (l *entityLocks) lock(entity string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*entityLock)
	}
	el, ok := l.locks[entity]
	if !ok {
		el = &entityLock{}
		l.locks[entity] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()
	return func() {
		el.mu.Unlock()
		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, entity)
		}
		l.mu.Unlock()
	}
}
