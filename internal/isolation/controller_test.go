package isolation

import (
	"context"
	"errors"
	"testing"
	"time"

	"aura/internal/capability"
	"aura/internal/query"
)

// deviceCountQuery counts rows bound to device/1, with no capability
// requirement and no derived rules of its own.
type deviceCountQuery struct{}

func (deviceCountQuery) RequiredCapabilities() []capability.Cap { return nil }
func (deviceCountQuery) Dependencies() []query.PredicatePattern {
	return []query.PredicatePattern{{Predicate: "device", Arity: 1}}
}
func (deviceCountQuery) Program() string     { return "" }
func (deviceCountQuery) ResultQuery() string { return "device(Id)" }
func (deviceCountQuery) ParseResult(bindings []query.Binding) (int, error) {
	return len(bindings), nil
}

func newTestController(t *testing.T) (*Controller, *query.Engine) {
	t.Helper()
	e := newTestEngine(t)
	cfg := DefaultConfig()
	cfg.DefaultConsensusTimeout = 200 * time.Millisecond
	return NewController(e, cfg), e
}

func TestExecuteReadUncommittedSeesLiveState(t *testing.T) {
	c, e := newTestController(t)
	if err := e.AddFacts([]query.Fact{{Predicate: "device", Args: []interface{}{"dev-1"}}}); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}

	count, err := Execute(context.Background(), c, nil, deviceCountQuery{}, ReadUncommitted())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 device, got %d", count)
	}
}

func TestExecuteReadCommittedWaitsThenRuns(t *testing.T) {
	c, e := newTestController(t)
	if err := e.AddFacts([]query.Fact{{Predicate: "device", Args: []interface{}{"dev-1"}}}); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.MarkCompleted("dkg-round-1")
	}()

	count, err := Execute(context.Background(), c, nil, deviceCountQuery{}, ReadCommitted([]ConsensusID{"dkg-round-1"}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 device, got %d", count)
	}
}

func TestExecuteReadCommittedTimesOut(t *testing.T) {
	c, _ := newTestController(t)
	_, err := Execute(context.Background(), c, nil, deviceCountQuery{}, ReadCommitted([]ConsensusID{"never-completes"}))
	var timeoutErr *query.ConsensusTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected ConsensusTimeoutError, got %v", err)
	}
	if timeoutErr.ID != "never-completes" {
		t.Fatalf("expected timeout to name never-completes, got %s", timeoutErr.ID)
	}
}

func TestExecuteReadLatestWaitsOnScopePending(t *testing.T) {
	c, e := newTestController(t)
	if err := e.AddFacts([]query.Fact{{Predicate: "device", Args: []interface{}{"dev-1"}}}); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}
	c.Pending().Register("account-1", "resharing-round-1")

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.MarkCompleted("resharing-round-1")
	}()

	count, err := Execute(context.Background(), c, nil, deviceCountQuery{}, ReadLatest("account-1"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 device, got %d", count)
	}
}

func TestExecuteSnapshotRunsAgainstFrozenState(t *testing.T) {
	c, e := newTestController(t)
	if err := e.AddFacts([]query.Fact{{Predicate: "device", Args: []interface{}{"dev-1"}}}); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}
	snap, err := c.CaptureSnapshot()
	if err != nil {
		t.Fatalf("CaptureSnapshot() error = %v", err)
	}

	if err := e.AddFacts([]query.Fact{{Predicate: "device", Args: []interface{}{"dev-2"}}}); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}

	liveCount, err := Execute(context.Background(), c, nil, deviceCountQuery{}, ReadUncommitted())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if liveCount != 2 {
		t.Fatalf("expected live state to have 2 devices, got %d", liveCount)
	}

	snapCount, err := Execute(context.Background(), c, nil, deviceCountQuery{}, Snapshot(snap.HashHex()))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if snapCount != 1 {
		t.Fatalf("expected snapshot to have 1 device, got %d", snapCount)
	}
}

func TestExecuteSnapshotNotAvailable(t *testing.T) {
	c, _ := newTestController(t)
	_, err := Execute(context.Background(), c, nil, deviceCountQuery{}, Snapshot("unknown-hash"))
	var notAvailable *query.SnapshotNotAvailableError
	if !errors.As(err, &notAvailable) {
		t.Fatalf("expected SnapshotNotAvailableError, got %v", err)
	}
}
