// Package fsm implements the eight-state application state machine:
// a DAG plus a universal Sleep sink, with a broadcast slot that
// always exposes the latest published state to any number of subscribers.
// Grounded on the teacher's four-state dictation FSM
// (sotto/internal/fsm/fsm.go), generalized to eight states and given a
// broadcast publication mechanism the teacher's CLI-only daemon never
// needed.
package fsm

import (
	"fmt"
	"sync"
)

// State is one of the eight application states.
type State string

const (
	StateSleep       State = "sleep"
	StateWakeConfirm State = "wake_confirm"
	StateModeSelect  State = "mode_select"
	StateCapture     State = "capture"
	StateOcr         State = "ocr"
	StateTranslate   State = "translate"
	StateRender      State = "render"
	StateIdle        State = "idle"
)

// Event names a requested transition.
type Event string

const (
	EventWakeHit        Event = "wake_hit"
	EventWakeConfirmed  Event = "wake_confirmed"
	EventWakeRejected   Event = "wake_rejected"
	EventSelectionMode  Event = "selection_mode"
	EventOcrMode        Event = "ocr_mode"
	EventRealtimeMode   Event = "realtime_mode"
	EventTextReady      Event = "text_ready"      // Capture -> Translate (selection/realtime)
	EventOcrRegionReady Event = "ocr_region_ready" // Capture -> Ocr
	EventOcrDone        Event = "ocr_done"         // Ocr -> Translate
	EventTranslateDone  Event = "translate_done"
	EventRenderDone     Event = "render_done"
	EventQuiesceElapsed Event = "quiesce_elapsed"
	EventCancel         Event = "cancel"
	EventError          Event = "error"
)

// table encodes the transition matrix:
//
//	from\to     Sleep Wake Mode Cap Ocr Trl Ren Idle
//	Sleep        —    T    —    —   —   —   —   —
//	WakeConfirm  T    —    T    —   —   —   —   —
//	ModeSelect   T    —    —    T   —   —   —   —
//	Capture      T    —    —    —   T   T   —   —
//	Ocr          T    —    —    —   —   T   —   —
//	Translate    T    —    —    —   —   —   T   —
//	Render       T    —    —    —   —   —   —   T
//	Idle         T    —    —    —   —   —   —   —
//
// Every state may also reach Sleep via EventCancel or EventError (the
// universal sink), encoded separately below rather than duplicated per
// row. ModeSelect only ever advances to Capture regardless of which mode
// was chosen: OCR-region capture, selected-text capture, and the
// realtime session all begin by capturing something before Capture
// forks to Ocr (recognition needed) or straight to Translate.
var table = map[State]map[Event]State{
	StateSleep: {
		EventWakeHit: StateWakeConfirm,
	},
	StateWakeConfirm: {
		EventWakeConfirmed: StateModeSelect,
		EventWakeRejected:  StateSleep,
	},
	StateModeSelect: {
		EventSelectionMode: StateCapture,
		EventOcrMode:       StateCapture,
		EventRealtimeMode:  StateCapture,
	},
	StateCapture: {
		EventOcrRegionReady: StateOcr,
		EventTextReady:      StateTranslate,
	},
	StateOcr: {
		EventOcrDone: StateTranslate,
	},
	StateTranslate: {
		EventTranslateDone: StateRender,
	},
	StateRender: {
		EventRenderDone: StateIdle,
	},
	StateIdle: {
		EventQuiesceElapsed: StateSleep,
	},
}

// Transition applies event to current per the transition table, plus the
// universal Sleep sink for EventCancel/EventError from any non-Sleep
// state. If the table denies the transition, current is returned
// unchanged alongside an error.
func Transition(current State, event Event) (State, error) {
	if (event == EventCancel || event == EventError) && current != StateSleep {
		return StateSleep, nil
	}

	if next, ok := table[current][event]; ok {
		return next, nil
	}
	return current, fmt.Errorf("fsm: denied transition %s --(%s)--> ?", current, event)
}

// Broadcast is a single-producer, many-subscriber slot: subscribers always
// observe the latest published state, never a queue of intermediate
// values. Grounded on the application's single-producer, many-subscriber
// broadcast slot requirement.
type Broadcast struct {
	mu          sync.Mutex
	state       State
	subscribers []chan State
}

// NewBroadcast constructs a Broadcast seeded at StateSleep.
func NewBroadcast() *Broadcast {
	return &Broadcast{state: StateSleep}
}

// Publish stores the new state and notifies every subscriber
// non-blockingly: a subscriber that hasn't drained its previous
// notification simply observes the latest value on its next Load, so no
// publish ever blocks on a slow subscriber.
func (b *Broadcast) Publish(state State) {
	b.mu.Lock()
	b.state = state
	subs := append([]chan State(nil), b.subscribers...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- state:
		default:
			// Drain the stale pending value and retry once, so a
			// subscriber that reads slowly still gets the latest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// Load returns the latest published state.
func (b *Broadcast) Load() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Subscribe returns a channel that always carries the most recently
// published state. The channel has capacity 1 by design: a slow
// subscriber never causes backpressure on Publish.
func (b *Broadcast) Subscribe() <-chan State {
	ch := make(chan State, 1)
	b.mu.Lock()
	ch <- b.state
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Machine couples the transition table to a Broadcast: every transition
// attempt is serialized by mu, and publication order to subscribers
// equals transition order.
type Machine struct {
	mu        sync.Mutex
	current   State
	broadcast *Broadcast
	onDenied  func(from State, event Event)
}

// NewMachine constructs a Machine at StateSleep.
func NewMachine() *Machine {
	return &Machine{current: StateSleep, broadcast: NewBroadcast()}
}

// OnDenied installs a callback invoked whenever a transition is denied,
// for logging. The callback runs while the Machine's lock is held, so a
// callback that calls back into the Machine deadlocks.
func (m *Machine) OnDenied(fn func(from State, event Event)) {
	m.mu.Lock()
	m.onDenied = fn
	m.mu.Unlock()
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Broadcast returns the underlying broadcast slot for subscription.
func (m *Machine) Broadcast() *Broadcast {
	return m.broadcast
}

// Apply attempts event against the current state. On success it updates
// state and publishes it before releasing the lock, preserving "publish
// order equals transition order". On denial the state is left unchanged,
// the denial is logged via onDenied, and an error is returned (P4).
func (m *Machine) Apply(event Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Transition(m.current, event)
	if err != nil {
		if m.onDenied != nil {
			m.onDenied(m.current, event)
		}
		return m.current, err
	}
	m.current = next
	m.broadcast.Publish(next)
	return next, nil
}
