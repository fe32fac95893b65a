package journal

import "fmt"

// CompactionProposalTooLateError reports a proposed cutoff that is not
// strictly behind the current Lamport clock.
type CompactionProposalTooLateError struct {
	BeforeEpoch, CurrentEpoch uint64
}

func (e *CompactionProposalTooLateError) Error() string {
	return fmt.Sprintf("journal: compaction cutoff %d must be before current epoch %d", e.BeforeEpoch, e.CurrentEpoch)
}

// ProposeCompaction validates a CompactionProposal against the current
// state (spec §4.7 step 1): the cutoff must be strictly behind the
// Lamport clock, and returns the preservation set of session ids whose
// commitment roots were created after the cutoff.
func ProposeCompaction(state *AccountState, beforeEpoch uint64) ([]string, error) {
	state.mu.RLock()
	current := state.LamportClock
	state.mu.RUnlock()
	if beforeEpoch >= current {
		return nil, &CompactionProposalTooLateError{BeforeEpoch: beforeEpoch, CurrentEpoch: current}
	}
	roots := state.GetCommitmentRootsAfterEpoch(beforeEpoch)
	preserve := make([]string, 0, len(roots))
	for _, r := range roots {
		preserve = append(preserve, r.SessionID)
	}
	return preserve, nil
}

// Compact prunes log entries strictly before beforeEpoch from l,
// preserving every commitment root created after the cutoff and leaving
// AccountState untouched (spec §4.7 step 3: "preserves all state...
// except tombstones on Remove*", which compaction never undoes since it
// only trims the log, not state).
func Compact(l *Log, beforeEpoch uint64) (removed int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[:0:0]
	for _, e := range l.events {
		if e.EpochAtWrite < beforeEpoch {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.events = kept
	return removed, nil
}

// VerifyPreservation checks that every session id in preserve still has
// a retrievable commitment root, the acknowledgement each device must
// perform before a CompactionCommit is authorized (spec §4.7 step 2).
func VerifyPreservation(state *AccountState, preserve []string) error {
	for _, sessionID := range preserve {
		if _, ok := state.GetCommitmentRoot(sessionID); !ok {
			return &InvalidEventError{Reason: fmt.Sprintf("compaction would lose commitment root for session %s", sessionID)}
		}
	}
	return nil
}
