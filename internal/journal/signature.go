package journal

import (
	"bytes"
	"fmt"

	"aura/internal/auracrypto"
)

// InvalidSignatureError reports any signature or share failing to
// verify.
type InvalidSignatureError struct {
	Detail string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("journal: invalid signature: %s", e.Detail)
}

// ThresholdNotMetError reports fewer signers than the account's
// threshold.
type ThresholdNotMetError struct {
	Current  int
	Required int
}

func (e *ThresholdNotMetError) Error() string {
	return fmt.Sprintf("journal: threshold not met: have %d, need %d", e.Current, e.Required)
}

// DeviceNotFoundError reports a signer not present (or tombstoned) in
// the device table.
type DeviceNotFoundError struct {
	DeviceID string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("journal: device not found: %s", e.DeviceID)
}

// GuardianNotFoundError reports a signer not present (or revoked) in
// the guardian table.
type GuardianNotFoundError struct {
	GuardianID string
}

func (e *GuardianNotFoundError) Error() string {
	return fmt.Sprintf("journal: guardian not found: %s", e.GuardianID)
}

// StaleEpochError reports an EpochTick whose new_epoch is not strictly
// greater than the current clock.
type StaleEpochError struct {
	Current, NewEpoch uint64
}

func (e *StaleEpochError) Error() string {
	return fmt.Sprintf("journal: stale epoch: current=%d new=%d", e.Current, e.NewEpoch)
}

// WeakKeyError reports a guardian public key matching a known-weak
// pattern.
type WeakKeyError struct {
	GuardianID string
}

func (e *WeakKeyError) Error() string {
	return fmt.Sprintf("journal: weak guardian key: %s", e.GuardianID)
}

// EpochTickMinGap is the minimum number of epochs an EpochTick must
// advance by.
const EpochTickMinGap = 5

// requiredAuthKind returns which authorization kind an event type
// demands, per spec §4.3 step 1.
func requiredAuthKind(t EventType) AuthorizationKind {
	switch t {
	case EventFinalizeDkg, EventFinalizeResharing, EventCompleteRecovery, EventCompactionCommit:
		return AuthThreshold
	case EventCollectGuardianApprove, EventSubmitRecoveryShare, EventAbortRecovery:
		return AuthGuardian
	case EventEpochTick:
		return AuthLifecycleInternal
	default:
		return AuthDevice
	}
}

// ValidateEvent runs the full §4.3 pipeline against an event about to be
// applied to state. state must reflect the pre-apply condition (the
// validation is read-only). deviceCount comes from the caller's current
// account configuration; the signer threshold is read from state.
func ValidateEvent(state *AccountState, e *Event, deviceCount int) (*auracrypto.SignatureShareAuditTrail, error) {
	wantKind := requiredAuthKind(e.Type)
	if e.Authorization.Kind != wantKind {
		return nil, &InvalidSignatureError{Detail: fmt.Sprintf("event type %q requires %q authorization, got %q", e.Type, wantKind, e.Authorization.Kind)}
	}

	signable, err := e.SignableHash()
	if err != nil {
		return nil, err
	}

	var trail *auracrypto.SignatureShareAuditTrail
	switch wantKind {
	case AuthThreshold:
		trail, err = validateThreshold(state, e, signable[:], deviceCount)
	case AuthDevice:
		err = validateDevice(state, e, signable[:])
	case AuthGuardian:
		err = validateGuardian(state, e, signable[:])
	case AuthLifecycleInternal:
		// no external signature; validated entirely by event-specific
		// preconditions below.
	}
	if err != nil {
		return trail, err
	}

	if err := validateEventSpecific(state, e); err != nil {
		return trail, err
	}
	return trail, nil
}

func validateThreshold(state *AccountState, e *Event, signable []byte, deviceCount int) (*auracrypto.SignatureShareAuditTrail, error) {
	auth := e.Authorization.Threshold
	if auth == nil {
		return nil, &InvalidSignatureError{Detail: "missing threshold authorization payload"}
	}
	if len(auth.SignerIndices) == 0 {
		return nil, &InvalidSignatureError{Detail: "empty signer index list"}
	}
	if len(auth.SignerIndices) < state.Threshold {
		return nil, &ThresholdNotMetError{Current: len(auth.SignerIndices), Required: state.Threshold}
	}
	shares := make([]auracrypto.SignatureShare, len(auth.Shares))
	copy(shares, auth.Shares)
	if err := auracrypto.ValidateSignerIndices(shares, uint32(deviceCount)); err != nil {
		return nil, &InvalidSignatureError{Detail: err.Error()}
	}

	groupPublicKey := state.GroupPublicKey
	if e.Type == EventFinalizeDkg && e.Payload.FinalizeDkg != nil {
		// FinalizeDkg establishes the group key; state.GroupPublicKey is
		// only set once this event applies, so it can't yet be the
		// verification key. Verify against the key the payload declares.
		groupPublicKey = e.Payload.FinalizeDkg.GroupPublicKey
	}
	// FinalizeResharing preserves the group public key (it rotates
	// threshold and participants, not the key), so it verifies against
	// state.GroupPublicKey the same way CompleteRecovery does.
	ts := auracrypto.ThresholdSignature{
		GroupPublicKey: groupPublicKey,
		Aggregate:      auth.Aggregate,
		Shares:         shares,
	}
	trail, err := auracrypto.VerifyThreshold(ts, signable)
	if err != nil {
		return &trail, &InvalidSignatureError{Detail: err.Error()}
	}
	return &trail, nil
}

func validateDevice(state *AccountState, e *Event, signable []byte) error {
	auth := e.Authorization.Device
	if auth == nil {
		return &InvalidSignatureError{Detail: "missing device authorization payload"}
	}
	d, ok := state.GetDevice(auth.DeviceID)
	if !ok {
		return &DeviceNotFoundError{DeviceID: auth.DeviceID}
	}
	if d.Tombstoned {
		return &DeviceNotFoundError{DeviceID: auth.DeviceID}
	}
	if !auracrypto.VerifySignature(d.PublicKey, signable, auth.Signature) {
		return &InvalidSignatureError{Detail: fmt.Sprintf("device %s signature does not verify", auth.DeviceID)}
	}
	return nil
}

func validateGuardian(state *AccountState, e *Event, signable []byte) error {
	auth := e.Authorization.Guardian
	if auth == nil {
		return &InvalidSignatureError{Detail: "missing guardian authorization payload"}
	}
	g, ok := state.GetGuardian(auth.GuardianID)
	if !ok {
		return &GuardianNotFoundError{GuardianID: auth.GuardianID}
	}
	if g.Revoked {
		return &GuardianNotFoundError{GuardianID: auth.GuardianID}
	}
	if isWeakKey(g.PublicKey) {
		return &WeakKeyError{GuardianID: auth.GuardianID}
	}
	msg := guardianMessage(e, auth.GuardianID)
	if !auracrypto.VerifySignature(g.PublicKey, msg, auth.Signature) {
		return &InvalidSignatureError{Detail: fmt.Sprintf("guardian %s signature does not verify", auth.GuardianID)}
	}
	return nil
}

// guardianMessage builds the canonical guardian-event message binding
// event id, account id, timestamp, nonce, parent_hash, guardian id,
// epoch, and event-type (spec §4.3 step 2).
func guardianMessage(e *Event, guardianID string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%d|%x|%s|%d|%s",
		e.EventID, e.AccountID, e.Timestamp, e.Nonce, e.ParentHash, guardianID, e.EpochAtWrite, e.Type))
}

// GuardianMessage exports guardianMessage for choreographies outside this
// package that need to produce a guardian signature over an event before
// submitting it.
func GuardianMessage(e *Event, guardianID string) []byte {
	return guardianMessage(e, guardianID)
}

// isWeakKey rejects all-zero, all-one, or otherwise constant public
// keys.
func isWeakKey(pk []byte) bool {
	if len(pk) == 0 {
		return true
	}
	allZero, allOne, constant := true, true, true
	first := pk[0]
	for _, b := range pk {
		if b != 0 {
			allZero = false
		}
		if b != 0xFF {
			allOne = false
		}
		if b != first {
			constant = false
		}
	}
	return allZero || allOne || constant
}

func validateEventSpecific(state *AccountState, e *Event) error {
	if e.Type == EventEpochTick {
		p := e.Payload.EpochTick
		if p == nil {
			return &InvalidEventError{Reason: "epoch_tick missing payload"}
		}
		if p.NewEpoch <= state.LamportClock {
			return &StaleEpochError{Current: state.LamportClock, NewEpoch: p.NewEpoch}
		}
		if p.NewEpoch < state.LamportClock+EpochTickMinGap {
			return &InvalidEventError{Reason: fmt.Sprintf("epoch_tick gap too small: need at least %d", EpochTickMinGap)}
		}
		hash, err := state.CanonicalHash()
		if err != nil {
			return err
		}
		if !bytes.Equal(hash[:], p.StateHash) {
			return &InvalidEventError{Reason: "epoch_tick evidence hash does not match pre-apply state hash"}
		}
	}
	if e.Type == EventFinalizeResharing && e.Payload.FinalizeResharing != nil {
		if state.GroupPublicKey != nil && !bytes.Equal(state.GroupPublicKey, e.Payload.FinalizeResharing.GroupPublicKey) {
			return &InvalidEventError{Reason: "finalize_resharing: group public key must be unchanged"}
		}
	}
	return nil
}
