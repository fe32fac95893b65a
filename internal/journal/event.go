// Package journal implements the event-sourced account ledger: the
// signed, causally-chained event log (spec §3.4), its signature
// validation pipeline (§4.3), the folded account state machine (§4.4),
// sessions (§3.5), commitment roots (§3.6), and compaction (§4.7).
package journal

import (
	"aura/internal/auracrypto"
)

// EventType discriminates the payload a journal event carries.
type EventType string

const (
	EventAddDevice              EventType = "add_device"
	EventRemoveDevice           EventType = "remove_device"
	EventAddGuardian            EventType = "add_guardian"
	EventRemoveGuardian         EventType = "remove_guardian"
	EventInitiateDkg            EventType = "initiate_dkg"
	EventSubmitDkgRound1        EventType = "submit_dkg_round1"
	EventSubmitDkgRound2        EventType = "submit_dkg_round2"
	EventFinalizeDkg            EventType = "finalize_dkg"
	EventInitiateResharing      EventType = "initiate_resharing"
	EventDistributeSubShare     EventType = "distribute_sub_share"
	EventAcknowledgeSubShare    EventType = "acknowledge_sub_share"
	EventFinalizeResharing      EventType = "finalize_resharing"
	EventResharingRollback      EventType = "resharing_rollback"
	EventInitiateRecovery       EventType = "initiate_recovery"
	EventCollectGuardianApprove EventType = "collect_guardian_approval"
	EventSubmitRecoveryShare    EventType = "submit_recovery_share"
	EventAbortRecovery          EventType = "abort_recovery"
	EventCompleteRecovery       EventType = "complete_recovery"
	EventEpochTick              EventType = "epoch_tick"
	EventUpdateDeviceNonce      EventType = "update_device_nonce"
	EventCreateSession          EventType = "create_session"
	EventCompleteSession        EventType = "complete_session"
	EventAbortSession           EventType = "abort_session"
	EventCompactionProposal     EventType = "compaction_proposal"
	EventCompactionAcknowledge  EventType = "compaction_acknowledge"
	EventCompactionCommit       EventType = "compaction_commit"
)

// AuthorizationKind names which signature scheme authorizes an event.
type AuthorizationKind string

const (
	AuthThreshold        AuthorizationKind = "threshold"
	AuthDevice           AuthorizationKind = "device"
	AuthGuardian         AuthorizationKind = "guardian"
	AuthLifecycleInternal AuthorizationKind = "lifecycle_internal"
)

// ThresholdAuth carries an aggregate FROST-style threshold signature plus
// its per-signer audit material.
type ThresholdAuth struct {
	Aggregate     []byte                      `cbor:"aggregate"`
	SignerIndices []uint8                     `cbor:"signer_indices"`
	Shares        []auracrypto.SignatureShare `cbor:"shares,omitempty"`
}

// DeviceAuth carries a single device's Ed25519 signature.
type DeviceAuth struct {
	DeviceID  string `cbor:"device_id"`
	Signature []byte `cbor:"signature"`
}

// GuardianAuth carries a single guardian's Ed25519 signature.
type GuardianAuth struct {
	GuardianID string `cbor:"guardian_id"`
	Signature  []byte `cbor:"signature"`
}

// Authorization is the event's authorization sum type. Exactly one of
// Threshold/Device/Guardian is set, matching Kind; LifecycleInternal sets
// none.
type Authorization struct {
	Kind      AuthorizationKind `cbor:"kind"`
	Threshold *ThresholdAuth    `cbor:"threshold,omitempty"`
	Device    *DeviceAuth       `cbor:"device,omitempty"`
	Guardian  *GuardianAuth     `cbor:"guardian,omitempty"`
}

// zeroedAuthorization is the fixed placeholder signable_hash substitutes
// for Authorization, so the signature covers everything else in the
// event but not itself.
var zeroedAuthorization = Authorization{Kind: "zeroed"}

// Device/guardian/session/dkg/recovery/compaction payload variants. Only
// one of Event's payload fields is set, matching Type. Unused struct
// fields are still declared even where this codebase's choreographies
// don't yet populate every field, since the wire format must round-trip
// whatever a peer implementation sends.

type AddDevicePayload struct {
	DeviceID  string `cbor:"device_id"`
	PublicKey []byte `cbor:"public_key"`
}

type RemoveDevicePayload struct {
	DeviceID string `cbor:"device_id"`
}

type AddGuardianPayload struct {
	GuardianID string `cbor:"guardian_id"`
	PublicKey  []byte `cbor:"public_key"`
}

type RemoveGuardianPayload struct {
	GuardianID string `cbor:"guardian_id"`
}

type InitiateDkgPayload struct {
	SessionID    string   `cbor:"session_id"`
	Participants []string `cbor:"participants"`
	Threshold    int      `cbor:"threshold"`
	TTLInEpochs  uint64   `cbor:"ttl_in_epochs"`
}

type SubmitDkgRound1Payload struct {
	SessionID  string `cbor:"session_id"`
	DeviceID   string `cbor:"device_id"`
	Commitment []byte `cbor:"commitment"`
}

type SubmitDkgRound2Payload struct {
	SessionID    string `cbor:"session_id"`
	FromDeviceID string `cbor:"from_device_id"`
	ToDeviceID   string `cbor:"to_device_id"`
	SealedShare  []byte `cbor:"sealed_share"`
}

type FinalizeDkgPayload struct {
	SessionID      string `cbor:"session_id"`
	GroupPublicKey []byte `cbor:"group_public_key"`
	CommitmentRoot []byte `cbor:"commitment_root"`
}

type InitiateResharingPayload struct {
	SessionID       string   `cbor:"session_id"`
	OldThreshold    int      `cbor:"old_threshold"`
	NewThreshold    int      `cbor:"new_threshold"`
	OldParticipants []string `cbor:"old_participants"`
	NewParticipants []string `cbor:"new_participants"`
	TTLInEpochs     uint64   `cbor:"ttl_in_epochs"`
}

type DistributeSubSharePayload struct {
	SessionID    string `cbor:"session_id"`
	FromDeviceID string `cbor:"from_device_id"`
	ToDeviceID   string `cbor:"to_device_id"`
	SealedShare  []byte `cbor:"sealed_share"`
}

type AcknowledgeSubSharePayload struct {
	SessionID  string `cbor:"session_id"`
	DeviceID   string `cbor:"device_id"`
	FromDevice string `cbor:"from_device_id"`
}

type FinalizeResharingPayload struct {
	SessionID      string `cbor:"session_id"`
	NewThreshold   int    `cbor:"new_threshold"`
	GroupPublicKey []byte `cbor:"group_public_key"`
}

type ResharingRollbackPayload struct {
	SessionID string `cbor:"session_id"`
	Reason    string `cbor:"reason"`
}

type InitiateRecoveryPayload struct {
	SessionID       string   `cbor:"session_id"`
	NewDeviceID     string   `cbor:"new_device_id"`
	NewDevicePK     []byte   `cbor:"new_device_pk"`
	Guardians       []string `cbor:"guardians"`
	QuorumThreshold int      `cbor:"quorum_threshold"`
	CooldownSeconds uint64   `cbor:"cooldown_seconds"`
}

type CollectGuardianApprovalPayload struct {
	SessionID  string `cbor:"session_id"`
	GuardianID string `cbor:"guardian_id"`
}

type SubmitRecoverySharePayload struct {
	SessionID    string `cbor:"session_id"`
	GuardianID   string `cbor:"guardian_id"`
	SealedShare  []byte `cbor:"sealed_share"`
}

type AbortRecoveryPayload struct {
	SessionID  string `cbor:"session_id"`
	GuardianID string `cbor:"guardian_id"`
	Reason     string `cbor:"reason"`
}

type CompleteRecoveryPayload struct {
	SessionID     string `cbor:"session_id"`
	NewDeviceID   string `cbor:"new_device_id"`
	TestSignature []byte `cbor:"test_signature"`
}

type EpochTickPayload struct {
	NewEpoch   uint64 `cbor:"new_epoch"`
	StateHash  []byte `cbor:"state_hash"`
}

type UpdateDeviceNoncePayload struct {
	DeviceID  string `cbor:"device_id"`
	NextNonce uint64 `cbor:"next_nonce"`
}

type CreateSessionPayload struct {
	SessionID    string   `cbor:"session_id"`
	ProtocolType string   `cbor:"protocol_type"`
	Participants []string `cbor:"participants"`
	StartEpoch   uint64   `cbor:"start_epoch"`
	TTLInEpochs  uint64   `cbor:"ttl_in_epochs"`
}

type CompleteSessionPayload struct {
	SessionID string `cbor:"session_id"`
	Outcome   []byte `cbor:"outcome"`
}

type AbortSessionPayload struct {
	SessionID string `cbor:"session_id"`
	Reason    string `cbor:"reason"`
}

type CompactionProposalPayload struct {
	BeforeEpoch      uint64   `cbor:"before_epoch"`
	PreserveSessions []string `cbor:"preserve_sessions"`
	AffectedEstimate int      `cbor:"affected_estimate"`
}

type CompactionAcknowledgePayload struct {
	DeviceID    string `cbor:"device_id"`
	BeforeEpoch uint64 `cbor:"before_epoch"`
}

type CompactionCommitPayload struct {
	BeforeEpoch uint64 `cbor:"before_epoch"`
}

// Payload is the event's typed body, a manually-tagged union matching
// Type; exactly one field is non-nil.
type Payload struct {
	AddDevice              *AddDevicePayload              `cbor:"add_device,omitempty"`
	RemoveDevice           *RemoveDevicePayload           `cbor:"remove_device,omitempty"`
	AddGuardian            *AddGuardianPayload            `cbor:"add_guardian,omitempty"`
	RemoveGuardian         *RemoveGuardianPayload         `cbor:"remove_guardian,omitempty"`
	InitiateDkg            *InitiateDkgPayload            `cbor:"initiate_dkg,omitempty"`
	SubmitDkgRound1        *SubmitDkgRound1Payload        `cbor:"submit_dkg_round1,omitempty"`
	SubmitDkgRound2        *SubmitDkgRound2Payload        `cbor:"submit_dkg_round2,omitempty"`
	FinalizeDkg            *FinalizeDkgPayload            `cbor:"finalize_dkg,omitempty"`
	InitiateResharing      *InitiateResharingPayload      `cbor:"initiate_resharing,omitempty"`
	DistributeSubShare     *DistributeSubSharePayload     `cbor:"distribute_sub_share,omitempty"`
	AcknowledgeSubShare    *AcknowledgeSubSharePayload    `cbor:"acknowledge_sub_share,omitempty"`
	FinalizeResharing      *FinalizeResharingPayload      `cbor:"finalize_resharing,omitempty"`
	ResharingRollback      *ResharingRollbackPayload      `cbor:"resharing_rollback,omitempty"`
	InitiateRecovery       *InitiateRecoveryPayload       `cbor:"initiate_recovery,omitempty"`
	CollectGuardianApprove *CollectGuardianApprovalPayload `cbor:"collect_guardian_approval,omitempty"`
	SubmitRecoveryShare    *SubmitRecoverySharePayload    `cbor:"submit_recovery_share,omitempty"`
	AbortRecovery          *AbortRecoveryPayload          `cbor:"abort_recovery,omitempty"`
	CompleteRecovery       *CompleteRecoveryPayload       `cbor:"complete_recovery,omitempty"`
	EpochTick              *EpochTickPayload              `cbor:"epoch_tick,omitempty"`
	UpdateDeviceNonce      *UpdateDeviceNoncePayload      `cbor:"update_device_nonce,omitempty"`
	CreateSession          *CreateSessionPayload          `cbor:"create_session,omitempty"`
	CompleteSession        *CompleteSessionPayload        `cbor:"complete_session,omitempty"`
	AbortSession           *AbortSessionPayload           `cbor:"abort_session,omitempty"`
	CompactionProposal     *CompactionProposalPayload     `cbor:"compaction_proposal,omitempty"`
	CompactionAcknowledge  *CompactionAcknowledgePayload  `cbor:"compaction_acknowledge,omitempty"`
	CompactionCommit       *CompactionCommitPayload       `cbor:"compaction_commit,omitempty"`
}

// Event is a versioned, causally-chained mutation of the ledger (spec
// §3.4).
type Event struct {
	EventID       string        `cbor:"event_id"`
	AccountID     string        `cbor:"account_id"`
	Timestamp     uint64        `cbor:"timestamp"`
	Nonce         uint64        `cbor:"nonce"`
	ParentHash    []byte        `cbor:"parent_hash,omitempty"` // absent for the first event of a causal thread (see Log.checkParentHash)
	EpochAtWrite  uint64        `cbor:"epoch_at_write"`
	Type          EventType     `cbor:"event_type"`
	Payload       Payload       `cbor:"payload"`
	Authorization Authorization `cbor:"authorization"`
}

// canonicalForm returns the struct CanonicalMarshal is applied to, with
// Authorization optionally zeroed for signable_hash.
type canonicalForm struct {
	EventID       string        `cbor:"event_id"`
	AccountID     string        `cbor:"account_id"`
	Timestamp     uint64        `cbor:"timestamp"`
	Nonce         uint64        `cbor:"nonce"`
	ParentHash    []byte        `cbor:"parent_hash,omitempty"`
	EpochAtWrite  uint64        `cbor:"epoch_at_write"`
	Type          EventType     `cbor:"event_type"`
	Payload       Payload       `cbor:"payload"`
	Authorization Authorization `cbor:"authorization"`
}

func (e *Event) toCanonical(auth Authorization) canonicalForm {
	return canonicalForm{
		EventID:       e.EventID,
		AccountID:     e.AccountID,
		Timestamp:     e.Timestamp,
		Nonce:         e.Nonce,
		ParentHash:    e.ParentHash,
		EpochAtWrite:  e.EpochAtWrite,
		Type:          e.Type,
		Payload:       e.Payload,
		Authorization: auth,
	}
}

// Hash returns the BLAKE3 hash of the event's full canonical
// serialization (including Authorization).
func (e *Event) Hash() ([32]byte, error) {
	data, err := auracrypto.CanonicalMarshal(e.toCanonical(e.Authorization))
	if err != nil {
		return [32]byte{}, err
	}
	return auracrypto.Hash(data), nil
}

// SignableHash is the same canonical serialization with Authorization
// replaced by a fixed zero placeholder, so a signature can cover
// everything else in the event without signing itself.
func (e *Event) SignableHash() ([32]byte, error) {
	data, err := auracrypto.CanonicalMarshal(e.toCanonical(zeroedAuthorization))
	if err != nil {
		return [32]byte{}, err
	}
	return auracrypto.Hash(data), nil
}
