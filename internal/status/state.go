package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
)

// State represents a session connection state.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	QRReady      State = "qr_ready"
	PairReady    State = "pair_ready"
	Connected    State = "connected"
	Error        State = "error"
)

// validTransitions defines allowed state transitions. A reconnect after a
// transient link loss goes Connected -> Connecting.
var validTransitions = map[State][]State{
	Disconnected: {Connecting, Error},
	Connecting:   {QRReady, PairReady, Connected, Disconnected, Error},
	QRReady:      {PairReady, Connected, Connecting, Disconnected, Error},
	PairReady:    {QRReady, Connected, Connecting, Disconnected, Error},
	Connected:    {Connecting, Disconnected, Error},
	Error:        {Connecting, Disconnected},
}

// Machine tracks and enforces one session's connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	session string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus, session string) *Machine {
	return &Machine{
		current: Disconnected,
		since:   time.Now(),
		session: session,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Transitioning to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Session:   m.session,
			Timestamp: m.since,
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
	From State `json:"from"`
	To   State `json:"to"`
}
