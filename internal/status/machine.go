package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/parley/internal/bus"
)

// State is the connection state of the client against its two real-time
// channels and the REST backend.
type State string

const (
	Booting      State = "BOOTING"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
	Offline      State = "OFFLINE"
	Error        State = "ERROR"
)

var validTransitions = map[State][]State{
	Booting:      {Connecting, Error},
	Connecting:   {Syncing, Reconnecting, Offline, Error},
	Syncing:      {Ready, Reconnecting, Degraded, Offline, Error},
	Ready:        {Reconnecting, Degraded, Offline, Error},
	Reconnecting: {Connecting, Degraded, Offline, Error},
	Degraded:     {Connecting, Reconnecting, Ready, Offline, Error},
	Offline:      {Connecting, Error},
	Error:        {Booting},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	reason  string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reason returns the detail attached to the last transition, if any.
func (m *Machine) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	return m.TransitionWithReason(to, "")
}

// TransitionWithReason is Transition with a human readable detail, used for
// the connection banner.
func (m *Machine) TransitionWithReason(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.reason = reason
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to, Reason: reason})
	return nil
}

// CanRetry reports whether a manual reconnect makes sense from the current state.
func (m *Machine) CanRetry() bool {
	return slices.Contains(validTransitions[m.Current()], Connecting)
}

// Healthy reports whether both channels are believed to be up.
func (m *Machine) Healthy() bool {
	return m.Current() == Ready
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State
	To     State
	Reason string
}
