package ulsm

import "sync"

// Machine is the single-writer state holder for one association. It is
// not itself concurrent-safe for Step/State calls from multiple
// goroutines at once beyond simple mutual exclusion: per spec.md §5 the
// SM loop is the sole caller.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine starts a fresh machine in Sta1 (Idle).
func NewMachine() *Machine {
	return &Machine{state: Sta1}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Step evaluates event against the current state, transitions, and
// returns the actions the caller must execute.
func (m *Machine) Step(event Event) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := Evaluate(m.state, event)
	m.state = res.NextState
	return res
}
