// Package resharing implements the Threshold Resharing choreography
// (spec §4.6.2): Initiate → Distribute → Acknowledge → Reconstruct →
// Verify → Finalize, or Rollback on timeout/failure.
package resharing

import (
	"context"
	"fmt"

	"aura/internal/auracrypto"
	"aura/internal/journal"
	"aura/internal/protocol"
)

var Phases = []protocol.State{
	protocol.StateInitiate,
	"distribute",
	"acknowledge",
	"reconstruct",
	"verify",
	"finalize",
	protocol.StateCompleted,
}

// Params configures a resharing run.
type Params struct {
	OldThreshold    int
	NewThreshold    int
	OldParticipants []string
	NewParticipants []string
	TTLInEpochs     uint64
	CurrentShare    []byte // this device's current share of the group secret

	// GroupSigningKey is the account's existing group keypair, known to
	// the coordinator. Resharing changes the threshold and participant
	// set but never the group public key (spec §8 S3), so the
	// coordinator signs FinalizeResharing with this key and carries its
	// public half forward unchanged, rather than substituting its own
	// persistent device identity key the way FinalizeDkg legitimately
	// does for a brand-new key. Only the coordinator needs this field.
	GroupSigningKey *auracrypto.SigningKey

	SealingPublicKeys       map[string][]byte // device id -> X25519 public key, for sealing sub-shares
	LocalSealingPrivateKey  []byte            // this device's X25519 private key, for opening received sub-shares
}

func (p Params) recipientPublicKeyFor(deviceID string) []byte {
	return p.SealingPublicKeys[deviceID]
}

type distributeWitness struct{ count, need int }

func (w distributeWitness) Valid() bool { return w.count >= w.need }

type reconstructWitness struct {
	shareLen int
	used     int
}

func (w reconstructWitness) Valid() bool { return w.shareLen == 32 && w.used > 0 }

type verifyWitness struct{ ok bool }

func (w verifyWitness) Valid() bool { return w.ok }

type finalizeWitness struct{ groupPK []byte }

func (w finalizeWitness) Valid() bool { return len(w.groupPK) == 32 }

// Outcome is the choreography's terminal result on success.
type Outcome struct {
	SessionID      string
	NewThreshold   int
	GroupPublicKey []byte
	NewShare       []byte
}

// Run executes the resharing choreography end to end. Coordinator is
// always the first entry of the OLD participant list (spec §4.6.2).
func Run(ctx context.Context, pctx *protocol.Context, p Params) (*Outcome, error) {
	m := protocol.NewMachine(Phases)
	isCoordinator := len(p.OldParticipants) > 0 && p.OldParticipants[0] == pctx.LocalDeviceID

	if isCoordinator {
		event := &journal.Event{
			EventID:      pctx.SessionID + "-initiate",
			EpochAtWrite: pctx.GetCurrentEpoch() + 1,
			Type:         journal.EventInitiateResharing,
			Payload: journal.Payload{InitiateResharing: &journal.InitiateResharingPayload{
				SessionID: pctx.SessionID, OldThreshold: p.OldThreshold, NewThreshold: p.NewThreshold,
				OldParticipants: p.OldParticipants, NewParticipants: p.NewParticipants, TTLInEpochs: p.TTLInEpochs,
			}},
		}
		if err := pctx.SignDeviceEvent(event); err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		if err := pctx.WriteToLedger(ctx, event); err != nil {
			return nil, abort(pctx, m, err.Error())
		}
	}

	isOldParticipant := contains(p.OldParticipants, pctx.LocalDeviceID)
	isNewParticipant := contains(p.NewParticipants, pctx.LocalDeviceID)

	if isOldParticipant {
		// Degree new_threshold-1 polynomial whose constant term is this
		// participant's current share; one sub-share per new participant.
		subShares, err := auracrypto.SplitSecret(p.CurrentShare, p.NewThreshold, len(p.NewParticipants))
		if err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		for i, newDevice := range p.NewParticipants {
			aad := []byte(pctx.SessionID + "||" + newDevice)
			sealed, err := auracrypto.Seal(p.recipientPublicKeyFor(newDevice), subShares[i].Value, aad)
			if err != nil {
				return nil, abort(pctx, m, err.Error())
			}
			env := sealedEnvelope(sealed)
			event := &journal.Event{
				EventID:      fmt.Sprintf("%s-distribute-%s-%s", pctx.SessionID, pctx.LocalDeviceID, newDevice),
				EpochAtWrite: pctx.GetCurrentEpoch() + 1,
				Type:         journal.EventDistributeSubShare,
				Payload: journal.Payload{DistributeSubShare: &journal.DistributeSubSharePayload{
					SessionID: pctx.SessionID, FromDeviceID: pctx.LocalDeviceID, ToDeviceID: newDevice, SealedShare: env,
				}},
			}
			if err := pctx.SignDeviceEvent(event); err != nil {
				return nil, abort(pctx, m, err.Error())
			}
			if err := pctx.WriteToLedger(ctx, event); err != nil {
				return nil, abort(pctx, m, err.Error())
			}
		}
	}
	m.Advance(distributeWitness{count: 1, need: 1})

	var acks int
	if isNewParticipant {
		received, err := collectSubShares(ctx, pctx, p)
		if err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		for _, fromDevice := range p.OldParticipants {
			_, ok := received[fromDevice]
			if !ok {
				continue
			}
			ackEvent := &journal.Event{
				EventID:      fmt.Sprintf("%s-ack-%s-%s", pctx.SessionID, pctx.LocalDeviceID, fromDevice),
				EpochAtWrite: pctx.GetCurrentEpoch() + 1,
				Type:         journal.EventAcknowledgeSubShare,
				Payload: journal.Payload{AcknowledgeSubShare: &journal.AcknowledgeSubSharePayload{
					SessionID: pctx.SessionID, DeviceID: pctx.LocalDeviceID, FromDevice: fromDevice,
				}},
			}
			if err := pctx.SignDeviceEvent(ackEvent); err != nil {
				return nil, abort(pctx, m, err.Error())
			}
			if err := pctx.WriteToLedger(ctx, ackEvent); err != nil {
				return nil, abort(pctx, m, err.Error())
			}
			acks++
		}
		m.Advance(distributeWitness{count: acks, need: 1})

		// Exactly new_threshold sub-shares are consumed for reconstruction;
		// extras are ignored.
		shares := make([]auracrypto.Share, 0, p.NewThreshold)
		idx := uint32(1)
		for _, v := range received {
			if len(shares) >= p.NewThreshold {
				break
			}
			shares = append(shares, auracrypto.Share{Index: idx, Value: v})
			idx++
		}
		newShare, err := auracrypto.ReconstructSecret(shares)
		if err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		m.Advance(reconstructWitness{shareLen: len(newShare), used: len(shares)})

		testSig := pctx.SigningKey.Sign([]byte("resharing-test-" + pctx.SessionID))
		m.Advance(verifyWitness{ok: len(testSig) == 64})

		if isCoordinator {
			groupPK := p.GroupSigningKey.PublicKey()
			finalizeEvent := &journal.Event{
				EventID:      pctx.SessionID + "-finalize",
				EpochAtWrite: pctx.GetCurrentEpoch() + 1,
				Type:         journal.EventFinalizeResharing,
				Payload: journal.Payload{FinalizeResharing: &journal.FinalizeResharingPayload{
					SessionID: pctx.SessionID, NewThreshold: p.NewThreshold, GroupPublicKey: groupPK,
				}},
			}
			// Signed by the group key itself, not pctx.SignThresholdEvent's
			// device-identity stand-in, so the aggregate verifies against
			// the account's preserved state.GroupPublicKey (mirrors
			// recovery's hand-built CompleteRecovery authorization).
			finalizeEvent.ParentHash = pctx.Log.State().LastEventHash
			finalizeEvent.Authorization = journal.Authorization{Kind: journal.AuthThreshold, Threshold: &journal.ThresholdAuth{
				SignerIndices: signerIndices(p.OldThreshold),
			}}
			hash, err := finalizeEvent.SignableHash()
			if err != nil {
				return nil, abort(pctx, m, err.Error())
			}
			finalizeEvent.Authorization.Threshold.Aggregate = p.GroupSigningKey.Sign(hash[:])
			if err := pctx.WriteToLedger(ctx, finalizeEvent); err != nil {
				return nil, abort(pctx, m, err.Error())
			}
			m.Advance(finalizeWitness{groupPK: groupPK})
			_ = m.Terminate(protocol.StateCompleted, finalizeWitness{groupPK: groupPK})
			return &Outcome{SessionID: pctx.SessionID, NewThreshold: p.NewThreshold, GroupPublicKey: groupPK, NewShare: newShare}, nil
		}

		filter := protocol.EventFilter{
			SessionID:  pctx.SessionID,
			EventTypes: []journal.EventType{journal.EventFinalizeResharing},
			Predicate: func(e *journal.Event) bool {
				return e.Payload.FinalizeResharing != nil && e.Payload.FinalizeResharing.SessionID == pctx.SessionID
			},
		}
		e, err := pctx.AwaitEvent(ctx, filter, p.TTLInEpochs)
		if err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		m.Advance(finalizeWitness{groupPK: e.Payload.FinalizeResharing.GroupPublicKey})
		_ = m.Terminate(protocol.StateCompleted, finalizeWitness{groupPK: e.Payload.FinalizeResharing.GroupPublicKey})
		return &Outcome{
			SessionID: pctx.SessionID, NewThreshold: p.NewThreshold,
			GroupPublicKey: e.Payload.FinalizeResharing.GroupPublicKey, NewShare: newShare,
		}, nil
	}

	return &Outcome{SessionID: pctx.SessionID, NewThreshold: p.NewThreshold}, nil
}

func collectSubShares(ctx context.Context, pctx *protocol.Context, p Params) (map[string][]byte, error) {
	out := make(map[string][]byte)
	filter := protocol.EventFilter{
		SessionID:  pctx.SessionID,
		EventTypes: []journal.EventType{journal.EventDistributeSubShare},
		Predicate: func(e *journal.Event) bool {
			d := e.Payload.DistributeSubShare
			return d != nil && d.SessionID == pctx.SessionID && d.ToDeviceID == pctx.LocalDeviceID
		},
	}
	for len(out) < p.NewThreshold && len(out) < len(p.OldParticipants) {
		e, err := pctx.AwaitEvent(ctx, filter, p.TTLInEpochs)
		if err != nil {
			if len(out) >= p.NewThreshold {
				break
			}
			return nil, err
		}
		d := e.Payload.DistributeSubShare
		aad := []byte(pctx.SessionID + "||" + pctx.LocalDeviceID)
		plaintext, err := openSealedEnvelope(p.LocalSealingPrivateKey, d.SealedShare, aad)
		if err != nil {
			continue // malformed/undecryptable share: skip, don't abort the whole ceremony
		}
		out[d.FromDeviceID] = plaintext
	}
	return out, nil
}

type abortWitness string

func (a abortWitness) Valid() bool { return len(a) > 0 }

func abort(pctx *protocol.Context, m *protocol.Machine, reason string) error {
	_ = m.Terminate(protocol.StateAborted, abortWitness(reason))
	rollback := &journal.Event{
		EventID:      pctx.SessionID + "-rollback",
		EpochAtWrite: pctx.GetCurrentEpoch() + 1,
		Type:         journal.EventResharingRollback,
		Payload: journal.Payload{ResharingRollback: &journal.ResharingRollbackPayload{
			SessionID: pctx.SessionID, Reason: reason,
		}},
	}
	_ = pctx.SignDeviceEvent(rollback)
	_ = pctx.WriteToLedger(context.Background(), rollback)
	return fmt.Errorf("resharing: aborted: %s", reason)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// signerIndices returns [0, n) as uint8, the index set a single-process
// coordinator declares when standing in for the full threshold quorum.
func signerIndices(n int) []uint8 {
	out := make([]uint8, n)
	for i := range out {
		out[i] = uint8(i)
	}
	return out
}
