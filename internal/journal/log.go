package journal

import (
	"sync"
)

// Log is the append-only, causally-chained event sequence for one
// account, paired with the folded AccountState it produces.
type Log struct {
	mu          sync.RWMutex
	events      []*Event
	state       *AccountState
	knownHashes map[string]struct{}
}

// NewLog creates a Log seeded with genesis state; the log itself starts
// empty (genesis is implicit in state, not an event).
func NewLog(genesis *AccountState) *Log {
	return &Log{state: genesis, knownHashes: make(map[string]struct{})}
}

// State returns the current folded AccountState. Callers must not
// mutate it directly; go through Append.
func (l *Log) State() *AccountState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Append validates e against current state, applies it, and appends it
// to the log on success. local controls Lamport clock advance semantics
// (see AccountState.ApplyEvent). deviceCount is the current device
// table size, needed to bound threshold signer indices.
func (l *Log) Append(e *Event, local bool, deviceCount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkParentHash(e); err != nil {
		return err
	}
	if _, err := ValidateEvent(l.state, e, deviceCount); err != nil {
		return err
	}
	if err := l.state.ApplyEvent(e, local); err != nil {
		return err
	}
	l.events = append(l.events, e)
	if l.state.LastEventHash != nil {
		l.knownHashes[string(l.state.LastEventHash)] = struct{}{}
	}
	return nil
}

// checkParentHash requires every event with a non-nil parent to name
// some prior event this log already knows about — not necessarily this
// log's current tip. Events authored concurrently by different
// participants in the same choreography round legitimately share one
// ancestor (e.g. the session's initiate event) without having seen each
// other first; rejecting anything but an exact-tip match would treat
// every such sibling as a conflict instead of a fork that simply
// hasn't been observed yet.
//
// A nil parent hash is always accepted, not just on an empty log: it
// marks the start of a new causal thread (a fresh choreography session,
// a device's own epoch-tick stream) that has no prior ancestor of its
// own, and a log legitimately interleaves more than one such thread.
func (l *Log) checkParentHash(e *Event) error {
	if e.ParentHash == nil {
		return nil
	}
	if _, ok := l.knownHashes[string(e.ParentHash)]; !ok {
		return &InvalidEventError{Reason: "parent_hash does not reference a known prior event"}
	}
	return nil
}

// Events returns a copy of the full event slice, in append order.
func (l *Log) Events() []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports the number of events currently retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
