// Package isolation implements the isolation controller from spec §4.9:
// four query-time isolation levels layered over internal/query's Engine,
// backed by a consensus tracker, a bounded snapshot store, and a
// per-resource-scope pending-consensus index.
package isolation

import "time"

// ConsensusID names a threshold-signed or quorum-acknowledged protocol
// round (a DKG round, a resharing epoch, a compaction commit) whose
// completion a ReadCommitted or ReadLatest query may need to wait on.
type ConsensusID string

// ResourceScope groups ConsensusIDs under a shared resource — typically
// a session ID or account ID — so ReadLatest can wait on "everything
// pending for this account" without the caller enumerating every id.
type ResourceScope string

// Config holds the controller's tunables.
type Config struct {
	// DefaultConsensusTimeout bounds ReadCommitted/ReadLatest waits when
	// the caller doesn't override it. Spec default: 30s.
	DefaultConsensusTimeout time.Duration
	// SnapshotCapacity bounds the SnapshotStore. Spec default: 100.
	SnapshotCapacity int
	// CompletionBroadcastCapacity bounds each ConsensusTracker
	// subscriber channel. Spec default: 256, lossy on overflow.
	CompletionBroadcastCapacity int
}

func DefaultConfig() Config {
	return Config{
		DefaultConsensusTimeout:     30 * time.Second,
		SnapshotCapacity:            100,
		CompletionBroadcastCapacity: 256,
	}
}
