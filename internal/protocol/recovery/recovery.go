// Package recovery implements the Guardian-Based Recovery choreography
// (spec §4.6.3): Initiate → Collect → Cooldown → Reconstruct →
// TestSignature → Finalize, with guardian veto during cooldown.
package recovery

import (
	"context"
	"fmt"

	"aura/internal/auracrypto"
	"aura/internal/journal"
	"aura/internal/protocol"
)

var Phases = []protocol.State{
	protocol.StateInitiate,
	"collect",
	"cooldown",
	"reconstruct",
	"test_signature",
	"finalize",
	protocol.StateCompleted,
}

// RecoveryInitiated proves a nonempty guardian set.
type RecoveryInitiated struct{ Guardians []string }

func (w RecoveryInitiated) Valid() bool { return len(w.Guardians) > 0 }

// RecoveryApprovalThresholdMet proves the approval count reached
// threshold.
type RecoveryApprovalThresholdMet struct{ Approvals, Threshold int }

func (w RecoveryApprovalThresholdMet) Valid() bool { return w.Approvals >= w.Threshold }

// CooldownCompleted proves no veto was recorded and the window actually
// elapsed.
type CooldownCompleted struct {
	Vetoed     bool
	Start, End uint64
}

func (w CooldownCompleted) Valid() bool { return !w.Vetoed && w.End > w.Start }

// RecoverySharesCollected proves share count reached threshold.
type RecoverySharesCollected struct{ Shares, Threshold int }

func (w RecoverySharesCollected) Valid() bool { return w.Shares >= w.Threshold }

// KeyReconstructed proves the reconstructed key is well-formed and at
// least one share contributed.
type KeyReconstructed struct {
	KeyLen, SharesUsed int
}

func (w KeyReconstructed) Valid() bool { return w.KeyLen == 32 && w.SharesUsed > 0 }

// RecoveryAbort proves a nonempty abort reason.
type RecoveryAbort struct{ Reason string }

func (w RecoveryAbort) Valid() bool { return w.Reason != "" }

// ErrVetoed is returned when a guardian emits AbortRecovery during
// cooldown.
var ErrVetoed = fmt.Errorf("recovery: aborted by guardian veto")

// Params configures a recovery run.
type Params struct {
	NewDeviceID     string
	NewDevicePK     []byte
	Guardians       []string
	QuorumThreshold int
	CooldownEpochs  uint64
	TTLInEpochs     uint64

	GuardianSealingPrivate []byte // set only on the new device, to open collected shares
	LocalGuardianShare     []byte // set only when running as a guardian, this guardian's share

	IsInitiator bool
	IsNewDevice bool
	IsGuardian  bool
}

// Outcome is the choreography's terminal result on success.
type Outcome struct {
	SessionID     string
	TestSignature []byte
}

// Run executes the guardian recovery choreography end to end.
func Run(ctx context.Context, pctx *protocol.Context, p Params) (*Outcome, error) {
	m := protocol.NewMachine(Phases)
	m.Advance(RecoveryInitiated{Guardians: p.Guardians})

	if p.IsInitiator {
		event := &journal.Event{
			EventID:      pctx.SessionID + "-initiate",
			EpochAtWrite: pctx.GetCurrentEpoch() + 1,
			Type:         journal.EventInitiateRecovery,
			Payload: journal.Payload{InitiateRecovery: &journal.InitiateRecoveryPayload{
				SessionID: pctx.SessionID, NewDeviceID: p.NewDeviceID, NewDevicePK: p.NewDevicePK,
				Guardians: p.Guardians, QuorumThreshold: p.QuorumThreshold, CooldownSeconds: p.CooldownEpochs,
			}},
		}
		if err := pctx.SignDeviceEvent(event); err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		if err := pctx.WriteToLedger(ctx, event); err != nil {
			return nil, abort(pctx, m, err.Error())
		}
	}

	if p.IsGuardian {
		aad := []byte("recovery:" + pctx.SessionID)
		sealed, err := auracrypto.Seal(p.NewDevicePK, p.LocalGuardianShare, aad)
		if err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		wire, err := auracrypto.EncodeSealed(sealed)
		if err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		event := &journal.Event{
			EventID:      pctx.SessionID + "-share-" + pctx.LocalDeviceID,
			EpochAtWrite: pctx.GetCurrentEpoch() + 1,
			Type:         journal.EventSubmitRecoveryShare,
			Payload: journal.Payload{SubmitRecoveryShare: &journal.SubmitRecoverySharePayload{
				SessionID: pctx.SessionID, GuardianID: pctx.LocalDeviceID, SealedShare: wire,
			}},
		}
		pctx.SignGuardianEvent(event, pctx.LocalDeviceID)
		if err := pctx.WriteToLedger(ctx, event); err != nil {
			return nil, abort(pctx, m, err.Error())
		}
	}

	var sealedShares map[string][]byte
	if p.IsNewDevice {
		var err error
		sealedShares, err = collectShares(ctx, pctx, p)
		if err != nil {
			return nil, abort(pctx, m, err.Error())
		}
	}
	if p.IsNewDevice {
		m.Advance(RecoverySharesCollected{Shares: len(sealedShares), Threshold: p.QuorumThreshold})
	}

	// Cooldown: five veto windows within the window, per spec §4.6.3.
	vetoed, reason, err := runCooldown(ctx, pctx, p)
	if err != nil {
		return nil, abort(pctx, m, err.Error())
	}
	if vetoed {
		_ = m.Terminate(protocol.StateAborted, RecoveryAbort{Reason: reason})
		return nil, ErrVetoed
	}
	m.Advance(CooldownCompleted{Vetoed: false, Start: 0, End: p.CooldownEpochs + 1})

	if !p.IsNewDevice {
		return &Outcome{SessionID: pctx.SessionID}, nil
	}

	// A guardian's share index is its 1-based position in p.Guardians.
	shares := make([]auracrypto.Share, 0, p.QuorumThreshold)
	aad := []byte("recovery:" + pctx.SessionID)
	for i, g := range p.Guardians {
		wire, ok := sealedShares[g]
		if !ok {
			continue
		}
		if len(shares) >= p.QuorumThreshold {
			break
		}
		sealed, err := auracrypto.DecodeSealed(wire)
		if err != nil {
			continue
		}
		plaintext, err := auracrypto.Open(p.GuardianSealingPrivate, sealed, aad)
		if err != nil {
			continue
		}
		shares = append(shares, auracrypto.Share{Index: uint32(i + 1), Value: plaintext})
	}
	recovered, err := auracrypto.ReconstructSecret(shares)
	if err != nil {
		return nil, abort(pctx, m, err.Error())
	}
	m.Advance(KeyReconstructed{KeyLen: len(recovered), SharesUsed: len(shares)})
	defer auracrypto.Zeroize(recovered)

	// The reconstructed secret is the account's group signing key; a test
	// signature under it is the proof recovery actually worked.
	groupKey, err := auracrypto.SigningKeyFromSeed(recovered)
	if err != nil {
		return nil, abort(pctx, m, err.Error())
	}
	testMsg := []byte("recovery_test_" + pctx.SessionID + "_" + p.NewDeviceID)
	testSig := groupKey.Sign(testMsg)
	m.Advance(boolWitness(len(testSig) == 64))

	finalizeEvent := &journal.Event{
		EventID:      pctx.SessionID + "-finalize",
		EpochAtWrite: pctx.GetCurrentEpoch() + 1,
		Type:         journal.EventCompleteRecovery,
		Payload: journal.Payload{CompleteRecovery: &journal.CompleteRecoveryPayload{
			SessionID: pctx.SessionID, NewDeviceID: p.NewDeviceID, TestSignature: testSig,
		}},
	}
	finalizeEvent.ParentHash = pctx.Log.State().LastEventHash
	finalizeEvent.Authorization = journal.Authorization{Kind: journal.AuthThreshold, Threshold: &journal.ThresholdAuth{
		SignerIndices: signerIndices(p.QuorumThreshold),
	}}
	hash, err := finalizeEvent.SignableHash()
	if err != nil {
		return nil, abort(pctx, m, err.Error())
	}
	finalizeEvent.Authorization.Threshold.Aggregate = groupKey.Sign(hash[:])
	if err := pctx.WriteToLedger(ctx, finalizeEvent); err != nil {
		return nil, abort(pctx, m, err.Error())
	}
	_ = m.Terminate(protocol.StateCompleted, boolWitness(true))

	pctx.MarkGuardianSharesForDeletion(pctx.SessionID, 7*24)

	return &Outcome{SessionID: pctx.SessionID, TestSignature: testSig}, nil
}

func collectShares(ctx context.Context, pctx *protocol.Context, p Params) (map[string][]byte, error) {
	out := make(map[string][]byte)
	filter := protocol.EventFilter{
		SessionID:  pctx.SessionID,
		EventTypes: []journal.EventType{journal.EventSubmitRecoveryShare},
		Predicate: func(e *journal.Event) bool {
			s := e.Payload.SubmitRecoveryShare
			return s != nil && s.SessionID == pctx.SessionID
		},
	}
	for len(out) < p.QuorumThreshold && len(out) < len(p.Guardians) {
		e, err := pctx.AwaitEvent(ctx, filter, p.TTLInEpochs)
		if err != nil {
			if len(out) >= p.QuorumThreshold {
				break
			}
			return nil, err
		}
		s := e.Payload.SubmitRecoveryShare
		out[s.GuardianID] = s.SealedShare
	}
	return out, nil
}

// runCooldown implements the five-veto-window polling pattern: repeated
// WaitEpochs(cooldown_epochs/5) + CheckForEvent{AbortRecovery} (spec
// §4.6.3).
func runCooldown(ctx context.Context, pctx *protocol.Context, p Params) (vetoed bool, reason string, err error) {
	windows := 5
	step := p.CooldownEpochs / uint64(windows)
	if step == 0 {
		step = 1
	}
	filter := protocol.EventFilter{
		SessionID:  pctx.SessionID,
		EventTypes: []journal.EventType{journal.EventAbortRecovery},
		Predicate: func(e *journal.Event) bool {
			return e.Payload.AbortRecovery != nil && e.Payload.AbortRecovery.SessionID == pctx.SessionID
		},
	}
	for i := 0; i < windows; i++ {
		if err := pctx.WaitEpochs(ctx, step); err != nil {
			return false, "", err
		}
		if e, ok := pctx.CheckForEvent(filter); ok {
			return true, "Recovery aborted by guardian veto: " + e.Payload.AbortRecovery.Reason, nil
		}
	}
	return false, "", nil
}

type boolWitness bool

func (b boolWitness) Valid() bool { return bool(b) }

func abort(pctx *protocol.Context, m *protocol.Machine, reason string) error {
	_ = m.Terminate(protocol.StateAborted, RecoveryAbort{Reason: reason})
	return fmt.Errorf("recovery: aborted: %s", reason)
}

// signerIndices returns [0, n) as uint8, the index set declared for a
// threshold-authorized event in this single-process simulation.
func signerIndices(n int) []uint8 {
	out := make([]uint8, n)
	for i := range out {
		out[i] = uint8(i)
	}
	return out
}
