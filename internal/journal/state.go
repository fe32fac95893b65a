package journal

import (
	"fmt"
	"sort"
	"sync"
)

// MaxUsedNoncesPerDevice bounds the per-device replay-protection set so
// it cannot grow unboundedly across a device's lifetime.
const MaxUsedNoncesPerDevice = 100_000

// Device is a registered signing identity on the account.
type Device struct {
	ID         string
	PublicKey  []byte
	Tombstoned bool
	NextNonce  uint64
	UsedNonces map[uint64]struct{}
}

// Guardian is an external identity authorized to vote in recovery.
type Guardian struct {
	ID        string
	PublicKey []byte
	Revoked   bool
}

// ProtocolType names the choreography a Session runs.
type ProtocolType string

const (
	ProtocolDkg              ProtocolType = "dkg"
	ProtocolResharing        ProtocolType = "resharing"
	ProtocolGuardianRecovery ProtocolType = "guardian_recovery"
)

// SessionStatus is a Session's lifecycle state.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
	SessionTimedOut  SessionStatus = "timed_out"
)

// Session tracks one protocol instance (spec §3.5).
type Session struct {
	SessionID    string
	ProtocolType ProtocolType
	Participants []string
	StartEpoch   uint64
	TTLInEpochs  uint64
	Status       SessionStatus
	Outcome      []byte
	CreatedAt    uint64
}

// Expired reports whether the session's TTL has elapsed as of
// currentClock.
func (s *Session) Expired(currentClock uint64) bool {
	return s.StartEpoch+s.TTLInEpochs < currentClock
}

// CommitmentRoot records a completed DKD ceremony's root hash (spec
// §3.6).
type CommitmentRoot struct {
	SessionID      string
	RootHash       []byte
	CreatedAtEpoch uint64
}

// AccountState is the fold of all applied events (spec §3.4).
type AccountState struct {
	mu sync.RWMutex

	AccountID          string
	GroupPublicKey     []byte
	Threshold          int
	Devices            map[string]*Device
	Guardians          map[string]*Guardian
	RemovedDevices     map[string]struct{}
	RemovedGuardians   map[string]struct{}
	LamportClock       uint64
	LastEventHash      []byte // nil iff the log is empty
	ActiveOperationLock string // session id holding the lock, "" if none
	Sessions           map[string]*Session
	CommitmentRoots    map[string]*CommitmentRoot
}

// NewAccountState creates genesis state with one founding device and a
// threshold configuration.
func NewAccountState(accountID, genesisDeviceID string, genesisDevicePublicKey []byte, threshold int) *AccountState {
	s := &AccountState{
		AccountID:        accountID,
		Threshold:        threshold,
		Devices:          make(map[string]*Device),
		Guardians:        make(map[string]*Guardian),
		RemovedDevices:   make(map[string]struct{}),
		RemovedGuardians: make(map[string]struct{}),
		Sessions:         make(map[string]*Session),
		CommitmentRoots:  make(map[string]*CommitmentRoot),
	}
	s.Devices[genesisDeviceID] = &Device{
		ID:         genesisDeviceID,
		PublicKey:  genesisDevicePublicKey,
		UsedNonces: make(map[uint64]struct{}),
	}
	return s
}

// InvalidEventError reports an event-specific precondition failure.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string { return fmt.Sprintf("journal: invalid event: %s", e.Reason) }

// LockHeldError reports an attempt to start a mutating protocol while
// another operation lock is already held.
type LockHeldError struct {
	HeldBy string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("journal: operation lock held by session %s", e.HeldBy)
}

// ApplyEvent folds one validated event into state. local indicates
// whether this event was emitted by this process (clock advances by
// local+1) or received from a peer (clock advances to
// max(local,event.EpochAtWrite)+1). Signature/authorization validation
// happens in the caller (signature.go); ApplyEvent assumes e is already
// authorized.
func (s *AccountState) ApplyEvent(e *Event, local bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if local {
		s.LamportClock++
	} else {
		if e.EpochAtWrite > s.LamportClock {
			s.LamportClock = e.EpochAtWrite
		}
		s.LamportClock++
	}

	if err := s.dispatch(e); err != nil {
		return err
	}

	hash, err := e.Hash()
	if err != nil {
		return err
	}
	s.LastEventHash = hash[:]
	return nil
}

func (s *AccountState) dispatch(e *Event) error {
	p := e.Payload
	switch e.Type {
	case EventAddDevice:
		if p.AddDevice == nil {
			return &InvalidEventError{Reason: "add_device missing payload"}
		}
		s.Devices[p.AddDevice.DeviceID] = &Device{
			ID:         p.AddDevice.DeviceID,
			PublicKey:  p.AddDevice.PublicKey,
			UsedNonces: make(map[uint64]struct{}),
		}

	case EventRemoveDevice:
		if p.RemoveDevice == nil {
			return &InvalidEventError{Reason: "remove_device missing payload"}
		}
		if d, ok := s.Devices[p.RemoveDevice.DeviceID]; ok {
			d.Tombstoned = true
		}
		s.RemovedDevices[p.RemoveDevice.DeviceID] = struct{}{}

	case EventAddGuardian:
		if p.AddGuardian == nil {
			return &InvalidEventError{Reason: "add_guardian missing payload"}
		}
		s.Guardians[p.AddGuardian.GuardianID] = &Guardian{
			ID:        p.AddGuardian.GuardianID,
			PublicKey: p.AddGuardian.PublicKey,
		}

	case EventRemoveGuardian:
		if p.RemoveGuardian == nil {
			return &InvalidEventError{Reason: "remove_guardian missing payload"}
		}
		if g, ok := s.Guardians[p.RemoveGuardian.GuardianID]; ok {
			g.Revoked = true
		}
		s.RemovedGuardians[p.RemoveGuardian.GuardianID] = struct{}{}

	case EventInitiateDkg:
		if p.InitiateDkg == nil {
			return &InvalidEventError{Reason: "initiate_dkg missing payload"}
		}
		if err := s.acquireLock(p.InitiateDkg.SessionID); err != nil {
			return err
		}
		s.Sessions[p.InitiateDkg.SessionID] = &Session{
			SessionID:    p.InitiateDkg.SessionID,
			ProtocolType: ProtocolDkg,
			Participants: p.InitiateDkg.Participants,
			StartEpoch:   s.LamportClock,
			TTLInEpochs:  p.InitiateDkg.TTLInEpochs,
			Status:       SessionActive,
			CreatedAt:    e.Timestamp,
		}

	case EventInitiateResharing:
		if p.InitiateResharing == nil {
			return &InvalidEventError{Reason: "initiate_resharing missing payload"}
		}
		if err := s.acquireLock(p.InitiateResharing.SessionID); err != nil {
			return err
		}
		s.Sessions[p.InitiateResharing.SessionID] = &Session{
			SessionID:    p.InitiateResharing.SessionID,
			ProtocolType: ProtocolResharing,
			Participants: p.InitiateResharing.NewParticipants,
			StartEpoch:   s.LamportClock,
			TTLInEpochs:  p.InitiateResharing.TTLInEpochs,
			Status:       SessionActive,
			CreatedAt:    e.Timestamp,
		}

	case EventInitiateRecovery:
		if p.InitiateRecovery == nil {
			return &InvalidEventError{Reason: "initiate_recovery missing payload"}
		}
		if err := s.acquireLock(p.InitiateRecovery.SessionID); err != nil {
			return err
		}
		s.Sessions[p.InitiateRecovery.SessionID] = &Session{
			SessionID:    p.InitiateRecovery.SessionID,
			ProtocolType: ProtocolGuardianRecovery,
			Participants: p.InitiateRecovery.Guardians,
			StartEpoch:   s.LamportClock,
			CreatedAt:    e.Timestamp,
			Status:       SessionActive,
		}

	case EventFinalizeDkg:
		if p.FinalizeDkg == nil {
			return &InvalidEventError{Reason: "finalize_dkg missing payload"}
		}
		s.GroupPublicKey = p.FinalizeDkg.GroupPublicKey
		s.CommitmentRoots[p.FinalizeDkg.SessionID] = &CommitmentRoot{
			SessionID:      p.FinalizeDkg.SessionID,
			RootHash:       p.FinalizeDkg.CommitmentRoot,
			CreatedAtEpoch: s.LamportClock,
		}

	case EventFinalizeResharing:
		if p.FinalizeResharing == nil {
			return &InvalidEventError{Reason: "finalize_resharing missing payload"}
		}
		s.Threshold = p.FinalizeResharing.NewThreshold
		// GroupPublicKey is unchanged by resharing; ValidateEvent already
		// rejected this event if the payload's key diverged from the
		// pre-existing one.
		s.GroupPublicKey = p.FinalizeResharing.GroupPublicKey

	case EventResharingRollback:
		if p.ResharingRollback == nil {
			return &InvalidEventError{Reason: "resharing_rollback missing payload"}
		}
		s.abortSession(p.ResharingRollback.SessionID, p.ResharingRollback.Reason)

	case EventAbortRecovery:
		if p.AbortRecovery == nil {
			return &InvalidEventError{Reason: "abort_recovery missing payload"}
		}
		s.abortSession(p.AbortRecovery.SessionID, p.AbortRecovery.Reason)

	case EventCompleteRecovery:
		if p.CompleteRecovery == nil {
			return &InvalidEventError{Reason: "complete_recovery missing payload"}
		}
		// New device becomes active; AddDevice is expected as a prior or
		// concurrent event in the recovery choreography.

	case EventEpochTick:
		if p.EpochTick == nil {
			return &InvalidEventError{Reason: "epoch_tick missing payload"}
		}

	case EventUpdateDeviceNonce:
		if p.UpdateDeviceNonce == nil {
			return &InvalidEventError{Reason: "update_device_nonce missing payload"}
		}
		if d, ok := s.Devices[p.UpdateDeviceNonce.DeviceID]; ok {
			d.NextNonce = p.UpdateDeviceNonce.NextNonce
		}

	case EventCreateSession:
		if p.CreateSession == nil {
			return &InvalidEventError{Reason: "create_session missing payload"}
		}
		s.Sessions[p.CreateSession.SessionID] = &Session{
			SessionID:    p.CreateSession.SessionID,
			ProtocolType: ProtocolType(p.CreateSession.ProtocolType),
			Participants: p.CreateSession.Participants,
			StartEpoch:   p.CreateSession.StartEpoch,
			TTLInEpochs:  p.CreateSession.TTLInEpochs,
			Status:       SessionPending,
			CreatedAt:    e.Timestamp,
		}

	case EventCompleteSession:
		if p.CompleteSession == nil {
			return &InvalidEventError{Reason: "complete_session missing payload"}
		}
		if sess, ok := s.Sessions[p.CompleteSession.SessionID]; ok {
			sess.Status = SessionCompleted
			sess.Outcome = p.CompleteSession.Outcome
		}
		s.releaseLockIfHeld(p.CompleteSession.SessionID)

	case EventAbortSession:
		if p.AbortSession == nil {
			return &InvalidEventError{Reason: "abort_session missing payload"}
		}
		s.abortSession(p.AbortSession.SessionID, p.AbortSession.Reason)

	case EventCompactionProposal, EventCompactionAcknowledge, EventCompactionCommit:
		// Handled by compaction.go, which reads the log directly; no
		// AccountState field changes beyond being present in the log.

	case EventSubmitDkgRound1, EventSubmitDkgRound2, EventDistributeSubShare,
		EventAcknowledgeSubShare, EventCollectGuardianApprove, EventSubmitRecoveryShare:
		// Protocol bookkeeping events: the choreography layer tracks
		// collected rounds/shares itself (ProtocolContext extensions);
		// AccountState only needs them in the log for replay/audit.

	default:
		return &InvalidEventError{Reason: fmt.Sprintf("unknown event type %q", e.Type)}
	}
	return nil
}

func (s *AccountState) acquireLock(sessionID string) error {
	if s.ActiveOperationLock != "" {
		return &LockHeldError{HeldBy: s.ActiveOperationLock}
	}
	s.ActiveOperationLock = sessionID
	return nil
}

func (s *AccountState) releaseLockIfHeld(sessionID string) {
	if s.ActiveOperationLock == sessionID {
		s.ActiveOperationLock = ""
	}
}

func (s *AccountState) abortSession(sessionID, reason string) {
	if sess, ok := s.Sessions[sessionID]; ok {
		sess.Status = SessionAborted
		sess.Outcome = []byte(reason)
	}
	s.releaseLockIfHeld(sessionID)
}

// CheckNonce validates and records a nonce for deviceID, rejecting
// replays. Call before authorizing an event authored by that device.
func (s *AccountState) CheckNonce(deviceID string, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Devices[deviceID]
	if !ok {
		return &InvalidEventError{Reason: fmt.Sprintf("unknown device %q", deviceID)}
	}
	if _, seen := d.UsedNonces[nonce]; seen {
		return &InvalidEventError{Reason: fmt.Sprintf("nonce %d already used by device %q", nonce, deviceID)}
	}
	if len(d.UsedNonces) >= MaxUsedNoncesPerDevice {
		return &InvalidEventError{Reason: fmt.Sprintf("device %q exceeded used-nonce capacity", deviceID)}
	}
	d.UsedNonces[nonce] = struct{}{}
	return nil
}

// GetDevice returns the device by id, and whether it exists.
func (s *AccountState) GetDevice(deviceID string) (*Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.Devices[deviceID]
	return d, ok
}

// GetGuardian returns the guardian by id, and whether it exists.
func (s *AccountState) GetGuardian(guardianID string) (*Guardian, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.Guardians[guardianID]
	return g, ok
}

// ActiveDevices returns non-tombstoned device ids in sorted order.
func (s *AccountState) ActiveDevices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, d := range s.Devices {
		if !d.Tombstoned {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RemovedGuardiansList returns tombstoned guardian ids in sorted order.
func (s *AccountState) RemovedGuardiansList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.RemovedGuardians))
	for id := range s.RemovedGuardians {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ActiveSessions returns sessions not in a terminal status, in sorted
// session-id order.
func (s *AccountState) ActiveSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.Sessions {
		if sess.Status == SessionPending || sess.Status == SessionActive {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// SessionsByProtocol returns all sessions of the given protocol type, in
// sorted session-id order.
func (s *AccountState) SessionsByProtocol(pt ProtocolType) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.Sessions {
		if sess.ProtocolType == pt {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// HasActiveSessionOfType reports whether any non-terminal session of
// protocol type pt exists.
func (s *AccountState) HasActiveSessionOfType(pt ProtocolType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.Sessions {
		if sess.ProtocolType == pt && (sess.Status == SessionPending || sess.Status == SessionActive) {
			return true
		}
	}
	return false
}

// GetCommitmentRoot returns the commitment root recorded for sessionID.
func (s *AccountState) GetCommitmentRoot(sessionID string) (*CommitmentRoot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.CommitmentRoots[sessionID]
	return r, ok
}

// GetCommitmentRootsAfterEpoch returns commitment roots created strictly
// after epoch, the preservation set compaction must retain (spec §4.7).
func (s *AccountState) GetCommitmentRootsAfterEpoch(epoch uint64) []*CommitmentRoot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*CommitmentRoot
	for _, r := range s.CommitmentRoots {
		if r.CreatedAtEpoch > epoch {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// CanonicalHash returns the BLAKE3 hash of a deterministic CBOR encoding
// of the account state, used as the EpochTick evidence hash and as a
// snapshot key (spec §4.3's compute_state_hash, §9's prestate hash).
func (s *AccountState) CanonicalHash() ([32]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateHash(s)
}
