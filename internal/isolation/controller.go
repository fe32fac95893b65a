package isolation

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"aura/internal/capability"
	"aura/internal/query"
)

// Controller wires the four isolation levels onto a query.Engine,
// coordinating the consensus tracker, snapshot store, and pending
// tracker spec §4.9 calls for.
type Controller struct {
	engine    *query.Engine
	consensus *ConsensusTracker
	snapshots *SnapshotStore
	pending   *PendingConsensusTracker
	cfg       Config
}

func NewController(engine *query.Engine, cfg Config) *Controller {
	return &Controller{
		engine:    engine,
		consensus: NewConsensusTracker(cfg.CompletionBroadcastCapacity),
		snapshots: NewSnapshotStore(cfg.SnapshotCapacity),
		pending:   NewPendingConsensusTracker(),
		cfg:       cfg,
	}
}

// Consensus exposes the controller's tracker so callers can register
// pending consensus ids and mark them completed.
func (c *Controller) Consensus() *ConsensusTracker { return c.consensus }

// Pending exposes the controller's scope index so callers can register
// a ConsensusID under a ResourceScope before a ReadLatest query needs it.
func (c *Controller) Pending() *PendingConsensusTracker { return c.pending }

// MarkCompleted records id as completed in both the consensus tracker
// (unblocking ReadCommitted waiters) and the pending tracker (removing
// it from every ResourceScope, unblocking ReadLatest waiters).
func (c *Controller) MarkCompleted(id ConsensusID) {
	c.consensus.MarkCompleted(id)
	c.pending.MarkCompleted(id)
}

// CaptureSnapshot freezes the engine's current fact store and registers
// it for later Snapshot{prestate_hash} execution.
func (c *Controller) CaptureSnapshot() (*query.Snapshot, error) {
	snap, err := c.engine.Snapshot()
	if err != nil {
		return nil, err
	}
	c.snapshots.Put(snap)
	return snap, nil
}

// Execute runs q under level. Go methods cannot carry their own type
// parameters, so Execute is a free function, like query.Execute and
// query.ExecuteAgainstSnapshot underneath it. timeoutOverride, if given,
// replaces the controller's default consensus wait budget for this call.
func Execute[T any](ctx context.Context, c *Controller, granted []capability.Cap, q query.Query[T], level Level, timeoutOverride ...time.Duration) (T, error) {
	var zero T
	timeout := c.cfg.DefaultConsensusTimeout
	if len(timeoutOverride) > 0 {
		timeout = timeoutOverride[0]
	}

	switch level.kind {
	case levelReadUncommitted:
		return query.Execute(ctx, c.engine, granted, q)

	case levelReadCommitted:
		if err := waitForAll(ctx, c.consensus, level.waitFor, timeout); err != nil {
			return zero, err
		}
		return query.Execute(ctx, c.engine, granted, q)

	case levelSnapshot:
		snap := c.snapshots.Get(level.prestateHash)
		if snap == nil {
			return zero, &query.SnapshotNotAvailableError{Hash: level.prestateHash}
		}
		return query.ExecuteAgainstSnapshot(ctx, c.engine, granted, q, snap)

	case levelReadLatest:
		ids := c.pending.Pending(level.scope)
		if err := waitForAll(ctx, c.consensus, ids, timeout); err != nil {
			return zero, err
		}
		return query.Execute(ctx, c.engine, granted, q)

	default:
		return zero, &query.ExecutionError{Reason: "unknown isolation level"}
	}
}

// waitForAll waits on every id concurrently (one goroutine per id, via
// errgroup, the same fan-out-and-wait shape consensus-round code in the
// retrieved pack uses), returning the first ConsensusTimeoutError or
// context cancellation encountered.
func waitForAll(ctx context.Context, tracker *ConsensusTracker, ids []ConsensusID, timeout time.Duration) error {
	if len(ids) == 0 {
		return nil
	}
	eg, groupCtx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			return waitForID(groupCtx, tracker, id, timeout)
		})
	}
	return eg.Wait()
}

// waitForID implements the three-step wait algorithm from spec §4.9:
// check completion under shared read access, subscribe if incomplete,
// then loop re-checking state against each channel signal or a timeout.
func waitForID(ctx context.Context, tracker *ConsensusTracker, id ConsensusID, timeout time.Duration) error {
	if tracker.IsCompleted(id) {
		return nil
	}

	ch, cancel := tracker.Subscribe()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if tracker.IsCompleted(id) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			// Some id completed; re-check at the top of the loop.
		case <-timer.C:
			return &query.ConsensusTimeoutError{ID: string(id)}
		}
	}
}
