package isolation

import "testing"

func containsID(ids []ConsensusID, id ConsensusID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func TestPendingConsensusTrackerRegisterAndPending(t *testing.T) {
	pt := NewPendingConsensusTracker()
	pt.Register("account-1", "dkg-round-1")
	pt.Register("account-1", "dkg-round-2")
	pt.Register("account-2", "resharing-round-1")

	got := pt.Pending("account-1")
	if len(got) != 2 || !containsID(got, "dkg-round-1") || !containsID(got, "dkg-round-2") {
		t.Fatalf("expected both account-1 ids, got %v", got)
	}
	if other := pt.Pending("account-2"); len(other) != 1 || other[0] != "resharing-round-1" {
		t.Fatalf("expected account-2's own id, got %v", other)
	}
}

func TestPendingConsensusTrackerMarkCompletedRemovesFromEveryScope(t *testing.T) {
	pt := NewPendingConsensusTracker()
	pt.Register("account-1", "shared-round")
	pt.Register("account-2", "shared-round")
	pt.Register("account-1", "other-round")

	pt.MarkCompleted("shared-round")

	if got := pt.Pending("account-1"); len(got) != 1 || got[0] != "other-round" {
		t.Fatalf("expected only other-round left under account-1, got %v", got)
	}
	if got := pt.Pending("account-2"); len(got) != 0 {
		t.Fatalf("expected account-2 empty after shared-round completed, got %v", got)
	}
}

func TestPendingConsensusTrackerEmptyScopeReturnsEmpty(t *testing.T) {
	pt := NewPendingConsensusTracker()
	if got := pt.Pending("never-registered"); len(got) != 0 {
		t.Fatalf("expected no pending ids, got %v", got)
	}
}
