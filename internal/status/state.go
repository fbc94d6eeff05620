package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wpphook/internal/bus"
)

// State is the connection state of the single logical WhatsApp session.
// The string values double as the wire values in HTTP and push payloads.
type State string

const (
	Disconnected State = "disconnected"
	AwaitingScan State = "qr"
	Connected    State = "connected"
)

// validTransitions defines the allowed transitions. There is no path
// from Connected to AwaitingScan: a live session must drop before a new
// pairing challenge can be presented.
var validTransitions = map[State][]State{
	Disconnected: {AwaitingScan, Connected},
	AwaitingScan: {AwaitingScan, Connected, Disconnected},
	Connected:    {Disconnected},
}

// Machine tracks and enforces connection state transitions. Every
// applied transition is published on the bus as session.status_changed.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error and
// leaves the state unchanged if the transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
