package protocol

import "fmt"

// Witness is evidence required to legally transition a session-typed
// state machine. Advancing without a valid witness is a programming
// error surfaced as a panic from Machine.Advance (Terminate returns an
// error instead), never a silently-accepted transition (spec §4.6: "constructing
// a state without a valid witness is a type error").
type Witness interface {
	Valid() bool
}

// State names a node in a choreography's session-type state machine.
type State string

const (
	StateInitiate  State = "initiate"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateTimedOut  State = "timed_out"
)

// Machine is a minimal session-typed state machine: a current state plus
// the ordered phase sequence it must follow. Advance only ever moves to
// the next phase in sequence; Terminate jumps straight to a terminal
// state from whatever state the machine is in.
type Machine struct {
	phases  []State
	current int
	state   State
}

// NewMachine builds a Machine whose first phase is phases[0].
func NewMachine(phases []State) *Machine {
	return &Machine{phases: phases, current: 0, state: phases[0]}
}

// Current returns the machine's current state.
func (m *Machine) Current() State { return m.state }

// TransitionError reports an illegal state transition attempt.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("protocol: illegal transition from %q to %q", e.From, e.To)
}

// Advance moves to the next phase in sequence, given a witness proving
// the move is legal. A nil or invalid witness panics: this is a
// programmer error, not a runtime condition to recover from.
func (m *Machine) Advance(w Witness) {
	if w == nil || !w.Valid() {
		panic(fmt.Sprintf("protocol: invalid witness for transition out of %q", m.state))
	}
	if m.current+1 >= len(m.phases) {
		panic(fmt.Sprintf("protocol: no phase after %q", m.state))
	}
	m.current++
	m.state = m.phases[m.current]
}

// Terminate moves the machine directly to Completed, Aborted, or TimedOut,
// regardless of current phase (every choreography's generic lifecycle
// step 6/7 allows aborting from any active phase).
func (m *Machine) Terminate(final State, w Witness) error {
	if final != StateCompleted && final != StateAborted && final != StateTimedOut {
		return &TransitionError{From: m.state, To: final}
	}
	if w == nil || !w.Valid() {
		return fmt.Errorf("protocol: invalid witness terminating into %q", final)
	}
	m.state = final
	return nil
}

// boolWitness adapts a plain condition into a Witness, for the common
// case where the witness carries no payload beyond "this happened".
type boolWitness bool

func (b boolWitness) Valid() bool { return bool(b) }
