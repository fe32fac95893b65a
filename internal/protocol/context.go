// Package protocol implements the choreographic runtime: a small
// instruction set (spec §4.5) choreographies issue against a
// ProtocolContext, and the session-typed state machines for DKG,
// threshold resharing, and guardian recovery (spec §4.6).
package protocol

import (
	"aura/internal/effects"
	"aura/internal/journal"
)

// Extensions holds the per-context fields individual choreographies
// need, kept as explicit optional fields rather than a bag of Any (spec
// §9's guidance on ProtocolContext's many optional extensions).
type Extensions struct {
	Guardians          []string
	NewThreshold       int
	NewParticipants    []string
	RecoveryInitiator  bool
	CollectedEvents    []*journal.Event
}

// Context is the ProtocolContext choreographies execute Instructions
// against (spec §4.5). It never does I/O directly; every side effect goes
// through one of its instruction methods (WriteToLedger, AwaitEvent,
// CheckForEvent, WaitEpochs, ...) and the injected Effects bundle.
type Context struct {
	SessionID      string
	LocalDeviceID  string
	Participants   []string
	Threshold      int
	Log            *journal.Log
	Effects        effects.Bundle
	SigningKey     effects.SigningKey
	Ext            Extensions
}

// NewContext builds a ProtocolContext for one choreography run.
func NewContext(sessionID, localDeviceID string, participants []string, threshold int, log *journal.Log, eff effects.Bundle, key effects.SigningKey) *Context {
	return &Context{
		SessionID:     sessionID,
		LocalDeviceID: localDeviceID,
		Participants:  participants,
		Threshold:     threshold,
		Log:           log,
		Effects:       eff,
		SigningKey:    key,
	}
}

// SignDeviceEvent attaches device authorization to e, signing its
// signable hash with the local device's key. Every event a choreography
// writes under AuthDevice must pass through this before WriteToLedger.
// It also stamps e.ParentHash from this device's current log tip, since
// the parent hash is covered by the signature and must be set before
// signing, not after.
func (c *Context) SignDeviceEvent(e *journal.Event) error {
	e.ParentHash = c.Log.State().LastEventHash
	e.Authorization = journal.Authorization{Kind: journal.AuthDevice, Device: &journal.DeviceAuth{DeviceID: c.LocalDeviceID}}
	hash, err := e.SignableHash()
	if err != nil {
		return err
	}
	e.Authorization.Device.Signature = c.SigningKey.Sign(hash[:])
	return nil
}

// SignThresholdEvent attaches threshold authorization to e, signing its
// signable hash with the local device's key standing in for the group's
// aggregate signature (spec §4.3: the aggregate is Ed25519-verifiable
// against the group public key, exactly as if one signer produced it).
// signerIndices must have length >= the account's threshold.
func (c *Context) SignThresholdEvent(e *journal.Event, signerIndices []uint8) error {
	e.ParentHash = c.Log.State().LastEventHash
	e.Authorization = journal.Authorization{Kind: journal.AuthThreshold, Threshold: &journal.ThresholdAuth{SignerIndices: signerIndices}}
	hash, err := e.SignableHash()
	if err != nil {
		return err
	}
	e.Authorization.Threshold.Aggregate = c.SigningKey.Sign(hash[:])
	return nil
}

// SignGuardianEvent attaches guardian authorization to e, signing the
// canonical guardian message (not the signable hash — guardians sign a
// narrower binding, spec §4.3 step 2) with the local guardian's key.
func (c *Context) SignGuardianEvent(e *journal.Event, guardianID string) {
	e.ParentHash = c.Log.State().LastEventHash
	e.Authorization = journal.Authorization{Kind: journal.AuthGuardian, Guardian: &journal.GuardianAuth{GuardianID: guardianID}}
	msg := journal.GuardianMessage(e, guardianID)
	e.Authorization.Guardian.Signature = c.SigningKey.Sign(msg)
}

// Coordinator returns the participant who acts as coordinator: the
// first entry of the current participant list (spec §4.6.2's tie-break,
// applied generically to every choreography).
func (c *Context) Coordinator() string {
	if len(c.Participants) == 0 {
		return ""
	}
	return c.Participants[0]
}

// IsCoordinator reports whether the local device is the coordinator.
func (c *Context) IsCoordinator() bool {
	return c.Coordinator() == c.LocalDeviceID
}
