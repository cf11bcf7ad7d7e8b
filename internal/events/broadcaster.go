// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events provides typed in-process event streams. Each component owns
// its own Broadcaster instead of publishing onto a shared global bus.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/ManuGH/savesync/internal/log"
	"github.com/ManuGH/savesync/internal/metrics"
)

const (
	DefaultBuffer = 64
	dropLogEvery  = 100
)

// Broadcaster fans values out to every live subscription. Publish never blocks:
// a subscriber whose buffer is full misses the value and the drop is counted.
type Broadcaster[T any] struct {
	topic   string
	mu      sync.RWMutex
	subs    map[*Subscription[T]]struct{}
	closed  bool
	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster; topic labels drop metrics and logs.
func NewBroadcaster[T any](topic string) *Broadcaster[T] {
	return &Broadcaster[T]{topic: topic, subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a new subscription. buffer <= 0 uses DefaultBuffer.
// Subscribing to a closed broadcaster yields an already-closed channel.
func (b *Broadcaster[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription[T]{b: b, ch: make(chan T, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	metrics.SetEventSubscribers(b.topic, len(b.subs))
	return s
}

// Publish delivers v to every subscriber that has buffer space.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- v:
		default:
			metrics.RecordEventDrop(b.topic)
			if n := b.dropped.Add(1); n%dropLogEvery == 1 {
				log.L().Warn().
					Str("topic", b.topic).
					Uint64("dropped", n).
					Msg("event subscriber too slow, dropping events")
			}
		}
	}
}

// Close closes every subscription. Further publishes are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.closed = true
		close(s.ch)
	}
	b.subs = nil
	metrics.SetEventSubscribers(b.topic, 0)
}

// Subscription is one consumer's view of a Broadcaster.
type Subscription[T any] struct {
	b      *Broadcaster[T]
	ch     chan T
	closed bool // guarded by b.mu
}

// C returns the receive channel. It is closed when the subscription or the
// broadcaster is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.b.subs, s)
	metrics.SetEventSubscribers(s.b.topic, len(s.b.subs))
	close(s.ch)
	return nil
}
