// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleAction(kind model.ActionKind) model.Action {
	switch kind {
	case model.ActContinueGame:
		return model.ContinueGame("Wizard")
	case model.ActNewGame:
		return model.NewGame("Wizard")
	case model.ActLoadFailed:
		return model.LoadFailed("boom")
	default:
		return model.Action{Kind: kind}
	}
}

// driveTo moves a fresh machine into the requested state using valid requests only.
func driveTo(t *testing.T, m *Machine, s model.SessionState) {
	t.Helper()
	switch s {
	case model.StateIdle:
	case model.StateLoading:
		require.Equal(t, model.ResultProceed, m.Request(model.NewGame("Wizard")))
	case model.StatePlaying:
		driveTo(t, m, model.StateLoading)
		require.Equal(t, model.ResultProceed, m.Request(model.GameStarted()))
	case model.StateExiting:
		driveTo(t, m, model.StatePlaying)
		require.Equal(t, model.ResultProceed, m.Request(model.ExitGame()))
	case model.StateError:
		driveTo(t, m, model.StateLoading)
		require.Equal(t, model.ResultFailed, m.Request(model.LoadFailed("boom")))
	}
	require.Equal(t, s, m.State())
}

func TestRequest_InvalidPairsLeaveStateUnchanged(t *testing.T) {
	for _, state := range model.AllStates {
		for _, kind := range model.AllActionKinds {
			if _, ok := TransitionFor(state, kind); ok {
				continue
			}
			t.Run(string(state)+"/"+string(kind), func(t *testing.T) {
				m := New(Config{})
				defer m.Close()
				driveTo(t, m, state)

				require.Equal(t, model.ResultInvalid, m.Request(sampleAction(kind)))
				require.Equal(t, state, m.State())
			})
		}
	}
}

func TestRequest_TableDriven(t *testing.T) {
	tests := []struct {
		from   model.SessionState
		action model.Action
		want   model.TransitionResult
		to     model.SessionState
	}{
		{model.StateIdle, model.ContinueGame("A"), model.ResultProceed, model.StateLoading},
		{model.StateIdle, model.NewGame("A"), model.ResultProceed, model.StateLoading},
		{model.StatePlaying, model.ContinueGame("B"), model.ResultExitFirst, model.StateExiting},
		{model.StatePlaying, model.NewGame("B"), model.ResultExitFirst, model.StateExiting},
		{model.StateLoading, model.GameStarted(), model.ResultProceed, model.StatePlaying},
		{model.StateLoading, model.LoadFailed("x"), model.ResultFailed, model.StateError},
		{model.StateLoading, model.ContinueGame("A"), model.ResultProceed, model.StateLoading},
		{model.StatePlaying, model.ExitGame(), model.ResultProceed, model.StateExiting},
		{model.StateExiting, model.GameExited(), model.ResultProceed, model.StateIdle},
		{model.StateError, model.ContinueGame("A"), model.ResultProceed, model.StateLoading},
		{model.StateError, model.NewGame("A"), model.ResultProceed, model.StateLoading},
	}
	for _, state := range model.AllStates {
		tests = append(tests, struct {
			from   model.SessionState
			action model.Action
			want   model.TransitionResult
			to     model.SessionState
		}{state, model.Reset(), model.ResultProceed, model.StateIdle})
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.action.String(), func(t *testing.T) {
			m := New(Config{})
			defer m.Close()
			driveTo(t, m, tt.from)

			require.Equal(t, tt.want, m.Request(tt.action))
			require.Equal(t, tt.to, m.State())
		})
	}
}

func collectStates(sub <-chan Event, n int, timeout time.Duration) []model.SessionState {
	var out []model.SessionState
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev := <-sub:
			if ev.Kind == EvStateChanged {
				out = append(out, ev.To)
			}
		case <-deadline:
			return out
		}
	}
	return out
}

func TestRequest_NewGameThenStartedObservesExactlyTwoStates(t *testing.T) {
	m := New(Config{})
	defer m.Close()
	sub := m.Subscribe()
	defer func() { _ = sub.Close() }()

	require.Equal(t, model.ResultProceed, m.Request(model.NewGame("X")))
	require.Equal(t, model.ResultProceed, m.Request(model.GameStarted()))

	got := collectStates(sub.C(), 2, time.Second)
	want := []model.SessionState{model.StateLoading, model.StatePlaying}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("observed states mismatch (-want +got):\n%s", diff)
	}

	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRequest_ExitFirstQueuesAndReplays(t *testing.T) {
	m := New(Config{})
	defer m.Close()
	driveTo(t, m, model.StatePlaying)

	require.Equal(t, model.ResultExitFirst, m.Request(model.ContinueGame("Y")))
	require.Equal(t, model.StateExiting, m.State())
	pending, ok := m.Pending()
	require.True(t, ok)
	require.Equal(t, model.ContinueGame("Y"), pending)

	sub := m.Subscribe()
	defer func() { _ = sub.Close() }()

	out := m.RequestDetailed(model.GameExited())
	require.Equal(t, model.ResultProceed, out.Result)
	require.Equal(t, model.StateExiting, out.From)
	require.Equal(t, model.StateLoading, out.To)
	require.NotNil(t, out.Replayed)
	require.Equal(t, model.ContinueGame("Y"), *out.Replayed)

	_, ok = m.Pending()
	require.False(t, ok)

	got := collectStates(sub.C(), 2, time.Second)
	if diff := cmp.Diff([]model.SessionState{model.StateIdle, model.StateLoading}, got); diff != "" {
		t.Fatalf("cascade mismatch (-want +got):\n%s", diff)
	}
}

func TestRequest_GameExitedWithoutPending(t *testing.T) {
	m := New(Config{})
	defer m.Close()
	driveTo(t, m, model.StateExiting)

	out := m.RequestDetailed(model.GameExited())
	require.Equal(t, model.ResultProceed, out.Result)
	require.Nil(t, out.Replayed)
	require.Equal(t, model.StateIdle, m.State())
}

func TestRequest_ResetClearsPending(t *testing.T) {
	m := New(Config{})
	defer m.Close()
	driveTo(t, m, model.StatePlaying)
	require.Equal(t, model.ResultExitFirst, m.Request(model.NewGame("Z")))

	require.Equal(t, model.ResultProceed, m.Request(model.Reset()))
	_, ok := m.Pending()
	require.False(t, ok)
	require.Equal(t, model.StateIdle, m.State())
}

func TestWatchdog_LoadingTimeoutFiresOnce(t *testing.T) {
	m := New(Config{LoadingTimeout: 40 * time.Millisecond, ExitingTimeout: time.Hour})
	defer m.Close()
	sub := m.Subscribe()
	defer func() { _ = sub.Close() }()

	require.Equal(t, model.ResultProceed, m.Request(model.ContinueGame("Wizard")))

	var timeouts []model.SessionState
	deadline := time.After(400 * time.Millisecond)
loop:
	for {
		select {
		case ev := <-sub.C():
			if ev.Kind == EvTimeout {
				timeouts = append(timeouts, ev.From)
			}
		case <-deadline:
			break loop
		}
	}

	require.Equal(t, []model.SessionState{model.StateLoading}, timeouts)
	require.Equal(t, model.StateIdle, m.State())
}

func TestWatchdog_ExitingTimeoutClearsPending(t *testing.T) {
	m := New(Config{LoadingTimeout: time.Hour, ExitingTimeout: 30 * time.Millisecond})
	defer m.Close()
	driveTo(t, m, model.StatePlaying)
	require.Equal(t, model.ResultExitFirst, m.Request(model.NewGame("Next")))

	require.Eventually(t, func() bool { return m.State() == model.StateIdle }, time.Second, 5*time.Millisecond)
	_, ok := m.Pending()
	require.False(t, ok)
}

func TestWatchdog_CancelledWhenLeavingTransientState(t *testing.T) {
	m := New(Config{LoadingTimeout: 30 * time.Millisecond})
	defer m.Close()
	sub := m.Subscribe()
	defer func() { _ = sub.Close() }()

	require.Equal(t, model.ResultProceed, m.Request(model.NewGame("A")))
	require.Equal(t, model.ResultProceed, m.Request(model.GameStarted()))

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, model.StatePlaying, m.State())
	for {
		select {
		case ev := <-sub.C():
			require.NotEqual(t, EvTimeout, ev.Kind)
		default:
			return
		}
	}
}

func TestWatchdog_RestartOnRetryWhileLoading(t *testing.T) {
	m := New(Config{LoadingTimeout: 80 * time.Millisecond})
	defer m.Close()

	require.Equal(t, model.ResultProceed, m.Request(model.NewGame("A")))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, model.ResultProceed, m.Request(model.NewGame("A")))
	time.Sleep(50 * time.Millisecond)
	// 100ms since first request but only 50ms since the restart.
	require.Equal(t, model.StateLoading, m.State())

	require.Eventually(t, func() bool { return m.State() == model.StateIdle }, time.Second, 5*time.Millisecond)
}

func TestWatchdog_OnTimeoutSurvivesStalledSubscriber(t *testing.T) {
	m := New(Config{LoadingTimeout: 30 * time.Millisecond, ExitingTimeout: time.Hour})
	defer m.Close()
	stalled := m.Subscribe()
	defer func() { _ = stalled.Close() }()

	var (
		mu     sync.Mutex
		stucks []model.SessionState
	)
	m.OnTimeout(func(stuck model.SessionState) {
		mu.Lock()
		stucks = append(stucks, stuck)
		mu.Unlock()
	})

	// Fill the unread subscription well past its buffer.
	for range events.DefaultBuffer {
		driveTo(t, m, model.StatePlaying)
		require.Equal(t, model.ResultProceed, m.Request(model.Reset()))
	}
	require.Equal(t, model.ResultProceed, m.Request(model.ContinueGame("Wizard")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(stucks) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []model.SessionState{model.StateLoading}, stucks)
	assert.Equal(t, model.StateIdle, m.State())
}

func TestMachine_ConcurrentRequestsKeepValidState(t *testing.T) {
	m := New(Config{LoadingTimeout: time.Hour, ExitingTimeout: time.Hour})
	defer m.Close()

	valid := map[model.SessionState]bool{}
	for _, s := range model.AllStates {
		valid[s] = true
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				kind := model.AllActionKinds[r.Intn(len(model.AllActionKinds))]
				res := m.Request(sampleAction(kind))
				assert.NotEmpty(t, res)
				assert.True(t, valid[m.State()])
			}
		}(int64(g))
	}
	wg.Wait()

	if _, ok := m.Pending(); ok {
		require.Equal(t, model.StateExiting, m.State(), "pending action only survives while exiting")
	}
}

func TestMachine_ClosedRejectsRequests(t *testing.T) {
	m := New(Config{})
	m.Close()
	require.Equal(t, model.ResultInvalid, m.Request(model.NewGame("A")))
	require.Equal(t, model.StateIdle, m.State())
}
