// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster[int]("test")
	s1 := b.Subscribe(4)
	s2 := b.Subscribe(4)

	b.Publish(1)
	b.Publish(2)

	require.Equal(t, 1, <-s1.C())
	require.Equal(t, 2, <-s1.C())
	require.Equal(t, 1, <-s2.C())
	require.Equal(t, 2, <-s2.C())
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	b := NewBroadcaster[string]("test-full")
	s := b.Subscribe(1)

	b.Publish("a")
	b.Publish("b") // dropped, must not block

	require.Equal(t, "a", <-s.C())
	select {
	case v := <-s.C():
		t.Fatalf("unexpected value %q", v)
	default:
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b := NewBroadcaster[int]("test-close")
	s := b.Subscribe(1)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, ok := <-s.C()
	require.False(t, ok)

	b.Publish(1) // no subscribers left
}

func TestBroadcaster_CloseClosesSubscribers(t *testing.T) {
	b := NewBroadcaster[int]("test-shutdown")
	s := b.Subscribe(1)
	b.Close()

	_, ok := <-s.C()
	require.False(t, ok)
	require.NoError(t, s.Close())

	late := b.Subscribe(1)
	_, ok = <-late.C()
	require.False(t, ok)
}
