package protocol

import (
	"context"
	"fmt"
	"time"

	"aura/internal/journal"
)

// PollInterval is how often AwaitEvent re-checks the log for a cooperative
// suspension point. Real time only paces the polling loop; timeout
// decisions themselves are epoch-based (spec §4.5), so PollInterval
// affects latency, never correctness.
var PollInterval = 10 * time.Millisecond

// LedgerState is the result of GetLedgerState.
type LedgerState struct {
	AccountID     string
	LastEventHash []byte
	Threshold     int
	DeviceSet     []string
}

// GetLedgerState snapshots (account_id, last_event_hash, threshold,
// device_set).
func (c *Context) GetLedgerState() LedgerState {
	st := c.Log.State()
	return LedgerState{
		AccountID:     st.AccountID,
		LastEventHash: st.LastEventHash,
		Threshold:     st.Threshold,
		DeviceSet:     st.ActiveDevices(),
	}
}

// GetCurrentEpoch reads the Lamport clock.
func (c *Context) GetCurrentEpoch() uint64 {
	return c.Log.State().LamportClock
}

// WriteToLedger validates and applies event locally, then broadcasts it
// to peers via the transport. It fails if local validation fails.
func (c *Context) WriteToLedger(ctx context.Context, event *journal.Event) error {
	deviceCount := len(c.Log.State().ActiveDevices())
	if err := c.Log.Append(event, true, deviceCount); err != nil {
		return fmt.Errorf("protocol: write to ledger: %w", err)
	}
	for _, peer := range c.Participants {
		if peer == c.LocalDeviceID {
			continue
		}
		env := effectsEnvelope(c.LocalDeviceID, peer, c.SessionID, event)
		if err := c.Effects.Transport.SendEnvelope(ctx, env); err != nil {
			return fmt.Errorf("protocol: broadcasting event to %s: %w", peer, err)
		}
	}
	return nil
}

// EventFilter selects events AwaitEvent/CheckForEvent match against.
type EventFilter struct {
	SessionID  string
	EventTypes []journal.EventType
	Authors    []string
	Predicate  func(*journal.Event) bool
}

func (f EventFilter) matches(e *journal.Event) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Predicate != nil && !f.Predicate(e) {
		return false
	}
	return true
}

// ErrTimeout is returned by AwaitEvent when the epoch budget is
// exhausted before a matching event appears.
var ErrTimeout = fmt.Errorf("protocol: timeout waiting for event")

// AwaitEvent blocks (cooperatively) until a matching event is appended
// to the ledger, or until current_epoch >= await_start_epoch +
// timeout_epochs. Timeout is epoch-based, not wall-clock, so protocol
// execution is deterministic under replay.
func (c *Context) AwaitEvent(ctx context.Context, filter EventFilter, timeoutEpochs uint64) (*journal.Event, error) {
	startEpoch := c.GetCurrentEpoch()
	seen := c.Log.Len()

	for {
		_, _ = c.PumpInbox(ctx)
		events := c.Log.Events()
		for _, e := range events[seen:] {
			if filter.matches(e) {
				return e, nil
			}
		}
		seen = len(events)

		if c.GetCurrentEpoch() >= startEpoch+timeoutEpochs {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

// CheckForEvent is a non-blocking poll variant of AwaitEvent.
func (c *Context) CheckForEvent(filter EventFilter) (*journal.Event, bool) {
	_, _ = c.PumpInbox(context.Background())
	for _, e := range c.Log.Events() {
		if filter.matches(e) {
			return e, true
		}
	}
	return nil, false
}

// WaitEpochs returns when the Lamport clock has advanced by at least n
// from the call's start.
func (c *Context) WaitEpochs(ctx context.Context, n uint64) error {
	start := c.GetCurrentEpoch()
	for c.GetCurrentEpoch() < start+n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}
	return nil
}

// PendingShareDeletion is a scheduled zeroization Effects.Storage should
// honor once TTL elapses; the engine hosting the ProtocolContext is
// responsible for running the sweep.
type PendingShareDeletion struct {
	SessionID string
	NotBefore uint64 // clock's NowMillis() + ttl, not a Lamport epoch
}

// MarkGuardianSharesForDeletion schedules secret zeroization for
// sessionID's guardian/DKG shares after ttlHours.
func (c *Context) MarkGuardianSharesForDeletion(sessionID string, ttlHours uint64) PendingShareDeletion {
	notBefore := c.Effects.Clock.NowMillis() + ttlHours*60*60*1000
	return PendingShareDeletion{SessionID: sessionID, NotBefore: notBefore}
}
