package fsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPathSelectionMode(t *testing.T) {
	s := StateSleep

	s, err := Transition(s, EventWakeHit)
	require.NoError(t, err)
	require.Equal(t, StateWakeConfirm, s)

	s, err = Transition(s, EventWakeConfirmed)
	require.NoError(t, err)
	require.Equal(t, StateModeSelect, s)

	s, err = Transition(s, EventSelectionMode)
	require.NoError(t, err)
	require.Equal(t, StateCapture, s)

	s, err = Transition(s, EventTextReady)
	require.NoError(t, err)
	require.Equal(t, StateTranslate, s)

	s, err = Transition(s, EventTranslateDone)
	require.NoError(t, err)
	require.Equal(t, StateRender, s)

	s, err = Transition(s, EventRenderDone)
	require.NoError(t, err)
	require.Equal(t, StateIdle, s)

	s, err = Transition(s, EventQuiesceElapsed)
	require.NoError(t, err)
	require.Equal(t, StateSleep, s)
}

func TestTransitionHappyPathOcrMode(t *testing.T) {
	s := StateModeSelect

	s, err := Transition(s, EventOcrMode)
	require.NoError(t, err)
	require.Equal(t, StateCapture, s)

	s, err = Transition(s, EventOcrRegionReady)
	require.NoError(t, err)
	require.Equal(t, StateOcr, s)

	s, err = Transition(s, EventOcrDone)
	require.NoError(t, err)
	require.Equal(t, StateTranslate, s)
}

func TestTransitionRealtimeModeAlsoEntersCapture(t *testing.T) {
	next, err := Transition(StateModeSelect, EventRealtimeMode)
	require.NoError(t, err)
	require.Equal(t, StateCapture, next)
}

func TestTransitionWakeRejectedReturnsToSleep(t *testing.T) {
	next, err := Transition(StateWakeConfirm, EventWakeRejected)
	require.NoError(t, err)
	require.Equal(t, StateSleep, next)
}

func TestTransitionCancelAndErrorAreUniversalSinkFromAnyNonSleepState(t *testing.T) {
	states := []State{
		StateWakeConfirm, StateModeSelect, StateCapture,
		StateOcr, StateTranslate, StateRender, StateIdle,
	}
	for _, state := range states {
		next, err := Transition(state, EventCancel)
		require.NoError(t, err)
		assert.Equal(t, StateSleep, next, "EventCancel from %s", state)

		next, err = Transition(state, EventError)
		require.NoError(t, err)
		assert.Equal(t, StateSleep, next, "EventError from %s", state)
	}
}

func TestTransitionCancelFromSleepIsDenied(t *testing.T) {
	next, err := Transition(StateSleep, EventCancel)
	require.Error(t, err)
	assert.Equal(t, StateSleep, next)
}

func TestTransitionMatrixDeniedCases(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{"sleep rejects wake_confirmed", StateSleep, EventWakeConfirmed},
		{"mode_select rejects ocr_region_ready", StateModeSelect, EventOcrRegionReady},
		{"capture rejects ocr_done", StateCapture, EventOcrDone},
		{"ocr rejects text_ready", StateOcr, EventTextReady},
		{"translate rejects render_done before translate_done", StateTranslate, EventRenderDone},
		{"render rejects quiesce_elapsed before render_done settles idle", StateRender, EventQuiesceElapsed},
		{"idle rejects wake_hit", StateIdle, EventWakeHit},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Error(t, err)
			assert.Equal(t, tc.state, next)
		})
	}
}

func TestBroadcastPublishAndLoad(t *testing.T) {
	b := NewBroadcast()
	assert.Equal(t, StateSleep, b.Load())

	b.Publish(StateWakeConfirm)
	assert.Equal(t, StateWakeConfirm, b.Load())
}

func TestBroadcastSubscribeSeesLatestOnly(t *testing.T) {
	b := NewBroadcast()
	ch := b.Subscribe()
	assert.Equal(t, StateSleep, <-ch)

	b.Publish(StateWakeConfirm)
	b.Publish(StateModeSelect)
	b.Publish(StateCapture)

	// A slow subscriber observes only the most recent value, never a
	// backlog of every intermediate publish.
	assert.Equal(t, StateCapture, <-ch)

	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value on channel: %s", v)
	default:
	}
}

func TestBroadcastPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBroadcast()
	_ = b.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(StateCapture)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestMachineApplySuccessUpdatesStateAndPublishes(t *testing.T) {
	m := NewMachine()
	ch := m.Broadcast().Subscribe()
	<-ch // drain seed value

	next, err := m.Apply(EventWakeHit)
	require.NoError(t, err)
	assert.Equal(t, StateWakeConfirm, next)
	assert.Equal(t, StateWakeConfirm, m.State())
	assert.Equal(t, StateWakeConfirm, <-ch)
}

func TestMachineApplyDenialLeavesStateUnchanged(t *testing.T) {
	m := NewMachine()

	next, err := m.Apply(EventWakeConfirmed)
	require.Error(t, err)
	assert.Equal(t, StateSleep, next)
	assert.Equal(t, StateSleep, m.State())
}

func TestMachineOnDeniedCallbackInvoked(t *testing.T) {
	m := NewMachine()
	var gotFrom State
	var gotEvent Event
	m.OnDenied(func(from State, event Event) {
		gotFrom = from
		gotEvent = event
	})

	_, err := m.Apply(EventRenderDone)
	require.Error(t, err)
	assert.Equal(t, StateSleep, gotFrom)
	assert.Equal(t, EventRenderDone, gotEvent)
}
