// Package dkg implements the Distributed Key Generation choreography
// (spec §4.6.1): Initiate → Round1 (commitment broadcast) → Round2
// (encrypted share to each peer) → Finalize (aggregate group public key
// + threshold signature).
package dkg

import (
	"context"
	"fmt"

	"aura/internal/auracrypto"
	"aura/internal/journal"
	"aura/internal/protocol"
)

// Params configures a DKG run. SealingPublicKeys/LocalSealingPrivateKey
// are X25519 keys used to seal each participant's round2 sub-shares to
// its peers, the same AAD-bound HPKE pattern resharing and recovery use.
type Params struct {
	TTLInEpochs uint64

	SealingPublicKeys      map[string][]byte
	LocalSealingPrivateKey []byte
}

var Phases = []protocol.State{
	protocol.StateInitiate,
	"round1",
	"round2",
	"finalize",
	protocol.StateCompleted,
}

// Round1CommitmentsWitness proves at least Threshold Round1 commitments
// (this device's own included) have been observed.
type Round1CommitmentsWitness struct {
	Commitments map[string][]byte
	Threshold   int
}

func (w Round1CommitmentsWitness) Valid() bool {
	return len(w.Commitments) >= w.Threshold
}

// Round2SharesWitness proves at least Threshold Round2 shares addressed
// to this device have been received and opened. The opened shares are
// not checked against their senders' Round1 commitments.
type Round2SharesWitness struct {
	Shares    map[string][]byte
	Threshold int
}

func (w Round2SharesWitness) Valid() bool {
	return len(w.Shares) >= w.Threshold
}

// FinalizeWitness proves the finalize step yielded a 32-byte group public
// key and a 64-byte aggregate signature. The signed FinalizeDkg payload
// carries the session id, group public key, and commitment root; the
// threshold and participant set are not part of it.
type FinalizeWitness struct {
	GroupPublicKey []byte
	Aggregate      []byte
}

func (w FinalizeWitness) Valid() bool {
	return len(w.GroupPublicKey) == 32 && len(w.Aggregate) == 64
}

// Outcome is the choreography's terminal result on success.
type Outcome struct {
	SessionID      string
	GroupPublicKey []byte
	CommitmentRoot []byte
}

// Run executes the DKG choreography end to end against pctx.
func Run(ctx context.Context, pctx *protocol.Context, p Params) (*Outcome, error) {
	m := protocol.NewMachine(Phases)

	if pctx.IsCoordinator() {
		startEpoch := pctx.GetCurrentEpoch()
		initEvent := &journal.Event{
			EventID:      pctx.SessionID + "-initiate",
			AccountID:    pctx.GetLedgerState().AccountID,
			EpochAtWrite: startEpoch + 1,
			Type:         journal.EventInitiateDkg,
			Payload: journal.Payload{InitiateDkg: &journal.InitiateDkgPayload{
				SessionID:    pctx.SessionID,
				Participants: pctx.Participants,
				Threshold:    pctx.Threshold,
				TTLInEpochs:  p.TTLInEpochs,
			}},
		}
		if err := pctx.SignDeviceEvent(initEvent); err != nil {
			return nil, abort(pctx, m, err.Error())
		}
		if err := pctx.WriteToLedger(ctx, initEvent); err != nil {
			return nil, abort(pctx, m, fmt.Sprintf("failed to initiate dkg: %v", err))
		}
	}

	contribution := make([]byte, 32)
	if _, err := pctx.Effects.RNG.Read(contribution); err != nil {
		return nil, abort(pctx, m, fmt.Sprintf("generating round1 contribution: %v", err))
	}

	commitments, err := collectRound1(ctx, pctx, contribution, p.TTLInEpochs)
	if err != nil {
		return nil, abort(pctx, m, err.Error())
	}
	m.Advance(Round1CommitmentsWitness{Commitments: commitments, Threshold: pctx.Threshold})

	shares, err := collectRound2(ctx, pctx, contribution, p)
	if err != nil {
		return nil, abort(pctx, m, err.Error())
	}
	m.Advance(Round2SharesWitness{Shares: shares, Threshold: pctx.Threshold})

	groupPK, aggregate, root, err := finalize(ctx, pctx, p.TTLInEpochs)
	if err != nil {
		return nil, abort(pctx, m, err.Error())
	}
	w := FinalizeWitness{GroupPublicKey: groupPK, Aggregate: aggregate}
	m.Advance(w)
	if err := m.Terminate(protocol.StateCompleted, w); err != nil {
		return nil, err
	}

	return &Outcome{SessionID: pctx.SessionID, GroupPublicKey: groupPK, CommitmentRoot: root}, nil
}

func collectRound1(ctx context.Context, pctx *protocol.Context, contribution []byte, ttl uint64) (map[string][]byte, error) {
	out := make(map[string][]byte)
	commitment := auracrypto.Hash(contribution)
	event := &journal.Event{
		EventID:      pctx.SessionID + "-round1-" + pctx.LocalDeviceID,
		EpochAtWrite: pctx.GetCurrentEpoch() + 1,
		Type:         journal.EventSubmitDkgRound1,
		Payload: journal.Payload{SubmitDkgRound1: &journal.SubmitDkgRound1Payload{
			SessionID: pctx.SessionID, DeviceID: pctx.LocalDeviceID, Commitment: commitment[:],
		}},
	}
	if err := pctx.SignDeviceEvent(event); err != nil {
		return nil, err
	}
	if err := pctx.WriteToLedger(ctx, event); err != nil {
		return nil, err
	}
	out[pctx.LocalDeviceID] = commitment[:]

	filter := protocol.EventFilter{
		SessionID:  pctx.SessionID,
		EventTypes: []journal.EventType{journal.EventSubmitDkgRound1},
		Predicate: func(e *journal.Event) bool {
			return e.Payload.SubmitDkgRound1 != nil && e.Payload.SubmitDkgRound1.SessionID == pctx.SessionID
		},
	}
	for len(out) < len(pctx.Participants) {
		e, err := pctx.AwaitEvent(ctx, filter, ttl)
		if err != nil {
			if len(out) >= pctx.Threshold {
				break
			}
			return nil, err
		}
		out[e.Payload.SubmitDkgRound1.DeviceID] = e.Payload.SubmitDkgRound1.Commitment
	}
	return out, nil
}

// collectRound2 splits this device's round1 contribution into one
// sealed sub-share per peer (degree threshold-1, same shape as
// resharing's sub-share distribution) and collects the shares peers
// seal back. The group key itself stays the coordinator's own (see
// DESIGN.md); these shares are genuine Shamir/HPKE material exercised
// the same way resharing and recovery exercise theirs, not yet folded
// into a combined group secret.
func collectRound2(ctx context.Context, pctx *protocol.Context, contribution []byte, p Params) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if len(pctx.Participants) > 1 {
		subShares, err := auracrypto.SplitSecret(contribution, pctx.Threshold, len(pctx.Participants)-1)
		if err != nil {
			return nil, err
		}
		i := 0
		for _, peer := range pctx.Participants {
			if peer == pctx.LocalDeviceID {
				continue
			}
			aad := []byte(pctx.SessionID + "||" + peer)
			sealed, err := auracrypto.Seal(p.SealingPublicKeys[peer], subShares[i].Value, aad)
			if err != nil {
				return nil, err
			}
			wire, err := auracrypto.EncodeSealed(sealed)
			if err != nil {
				return nil, err
			}
			i++
			event := &journal.Event{
				EventID:      fmt.Sprintf("%s-round2-%s-%s", pctx.SessionID, pctx.LocalDeviceID, peer),
				EpochAtWrite: pctx.GetCurrentEpoch() + 1,
				Type:         journal.EventSubmitDkgRound2,
				Payload: journal.Payload{SubmitDkgRound2: &journal.SubmitDkgRound2Payload{
					SessionID: pctx.SessionID, FromDeviceID: pctx.LocalDeviceID, ToDeviceID: peer, SealedShare: wire,
				}},
			}
			if err := pctx.SignDeviceEvent(event); err != nil {
				return nil, err
			}
			if err := pctx.WriteToLedger(ctx, event); err != nil {
				return nil, err
			}
		}
	}

	filter := protocol.EventFilter{
		SessionID:  pctx.SessionID,
		EventTypes: []journal.EventType{journal.EventSubmitDkgRound2},
		Predicate: func(e *journal.Event) bool {
			p := e.Payload.SubmitDkgRound2
			return p != nil && p.SessionID == pctx.SessionID && p.ToDeviceID == pctx.LocalDeviceID
		},
	}
	want := len(pctx.Participants) - 1
	if want < 0 {
		want = 0
	}
	aad := []byte(pctx.SessionID + "||" + pctx.LocalDeviceID)
	for len(out) < want {
		e, err := pctx.AwaitEvent(ctx, filter, p.TTLInEpochs)
		if err != nil {
			if len(out) >= pctx.Threshold-1 {
				break
			}
			return nil, err
		}
		sealed, err := auracrypto.DecodeSealed(e.Payload.SubmitDkgRound2.SealedShare)
		if err != nil {
			continue // malformed envelope: skip, don't abort the whole ceremony
		}
		plaintext, err := auracrypto.Open(p.LocalSealingPrivateKey, sealed, aad)
		if err != nil {
			continue // wrong recipient or tampered aad: skip
		}
		out[e.Payload.SubmitDkgRound2.FromDeviceID] = plaintext
	}
	return out, nil
}

func finalize(ctx context.Context, pctx *protocol.Context, ttl uint64) (groupPK, aggregate, root []byte, err error) {
	if pctx.IsCoordinator() {
		groupPK = pctx.SigningKey.PublicKey()
		rootHash := auracrypto.HashMulti([]byte(pctx.SessionID), groupPK)
		event := &journal.Event{
			EventID:      pctx.SessionID + "-finalize",
			EpochAtWrite: pctx.GetCurrentEpoch() + 1,
			Type:         journal.EventFinalizeDkg,
			Payload: journal.Payload{FinalizeDkg: &journal.FinalizeDkgPayload{
				SessionID: pctx.SessionID, GroupPublicKey: groupPK, CommitmentRoot: rootHash[:],
			}},
		}
		if err := pctx.SignThresholdEvent(event, signerIndices(pctx.Threshold)); err != nil {
			return nil, nil, nil, err
		}
		if err := pctx.WriteToLedger(ctx, event); err != nil {
			return nil, nil, nil, err
		}
		return groupPK, event.Authorization.Threshold.Aggregate, rootHash[:], nil
	}

	filter := protocol.EventFilter{
		SessionID:  pctx.SessionID,
		EventTypes: []journal.EventType{journal.EventFinalizeDkg},
		Predicate: func(e *journal.Event) bool {
			return e.Payload.FinalizeDkg != nil && e.Payload.FinalizeDkg.SessionID == pctx.SessionID
		},
	}
	e, err := pctx.AwaitEvent(ctx, filter, ttl)
	if err != nil {
		return nil, nil, nil, err
	}
	var agg []byte
	if e.Authorization.Threshold != nil {
		agg = e.Authorization.Threshold.Aggregate
	}
	return e.Payload.FinalizeDkg.GroupPublicKey, agg, e.Payload.FinalizeDkg.CommitmentRoot, nil
}

func abort(pctx *protocol.Context, m *protocol.Machine, reason string) error {
	_ = m.Terminate(protocol.StateAborted, boolWitnessReason(reason))
	pctx.MarkGuardianSharesForDeletion(pctx.SessionID, 1)
	return fmt.Errorf("dkg: aborted: %s", reason)
}

type boolWitnessReason string

func (b boolWitnessReason) Valid() bool { return len(b) > 0 }

// signerIndices returns [0, n) as uint8, the index set a single-process
// coordinator declares when standing in for the full threshold quorum.
func signerIndices(n int) []uint8 {
	out := make([]uint8, n)
	for i := range out {
		out[i] = uint8(i)
	}
	return out
}
