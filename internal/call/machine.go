package call

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/parley/internal/bus"
)

// State is the call lifecycle state. Teardown always returns to Idle.
type State string

const (
	Idle     State = "IDLE"
	Outgoing State = "OUTGOING"
	Incoming State = "INCOMING"
	Active   State = "ACTIVE"
)

var validTransitions = map[State][]State{
	Idle:     {Outgoing, Incoming},
	Outgoing: {Active, Idle},
	Incoming: {Active, Idle},
	Active:   {Idle},
}

// StateChange is the payload of call.state_changed events.
type StateChange struct {
	From   State
	To     State
	Call   Call
	Reason string
}

// Machine enforces call state transitions and announces them on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to state to on behalf of c.
func (m *Machine) Transition(to State, c Call, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid call transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindCallStateChanged, StateChange{From: from, To: to, Call: c, Reason: reason})
	return nil
}
