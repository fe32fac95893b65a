package protocol

import "testing"

func TestMachineAdvanceFollowsPhaseOrder(t *testing.T) {
	phases := []State{StateInitiate, "middle", StateCompleted}
	m := NewMachine(phases)
	if m.Current() != StateInitiate {
		t.Fatalf("expected initial state %q, got %q", StateInitiate, m.Current())
	}
	m.Advance(boolWitness(true))
	if m.Current() != "middle" {
		t.Fatalf("expected state %q, got %q", "middle", m.Current())
	}
	m.Advance(boolWitness(true))
	if m.Current() != StateCompleted {
		t.Fatalf("expected state %q, got %q", StateCompleted, m.Current())
	}
}

func TestMachineAdvancePanicsOnInvalidWitness(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on invalid witness")
		}
	}()
	m := NewMachine([]State{StateInitiate, StateCompleted})
	m.Advance(boolWitness(false))
}

func TestMachineAdvancePanicsOnNilWitness(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on nil witness")
		}
	}()
	m := NewMachine([]State{StateInitiate, StateCompleted})
	m.Advance(nil)
}

func TestMachineAdvancePanicsPastLastPhase(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic advancing past the last phase")
		}
	}()
	m := NewMachine([]State{StateInitiate, StateCompleted})
	m.Advance(boolWitness(true))
	m.Advance(boolWitness(true))
}

func TestMachineTerminateFromAnyPhase(t *testing.T) {
	m := NewMachine([]State{StateInitiate, "middle", "late", StateCompleted})
	if err := m.Terminate(StateAborted, boolWitness(true)); err != nil {
		t.Fatalf("expected abort from initiate phase to succeed, got %v", err)
	}
	if m.Current() != StateAborted {
		t.Fatalf("expected state %q, got %q", StateAborted, m.Current())
	}
}

func TestMachineTerminateRejectsNonTerminalTarget(t *testing.T) {
	m := NewMachine([]State{StateInitiate, StateCompleted})
	if err := m.Terminate("middle", boolWitness(true)); err == nil {
		t.Fatal("expected error terminating into a non-terminal state")
	}
}

func TestMachineTerminateRejectsInvalidWitness(t *testing.T) {
	m := NewMachine([]State{StateInitiate, StateCompleted})
	if err := m.Terminate(StateAborted, boolWitness(false)); err == nil {
		t.Fatal("expected error terminating with an invalid witness")
	}
}

func TestMachineTerminateAcceptsTimedOut(t *testing.T) {
	m := NewMachine([]State{StateInitiate, StateCompleted})
	if err := m.Terminate(StateTimedOut, boolWitness(true)); err != nil {
		t.Fatalf("expected timed_out to be a legal terminal state, got %v", err)
	}
}
