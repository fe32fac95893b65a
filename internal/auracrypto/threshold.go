package auracrypto

import (
	"fmt"
	"sort"
)

// ThresholdSignature is a FROST-style aggregated signature produced by a
// quorum of device shares. Verification is Ed25519-compatible: the
// aggregate signature is checked with the group's single Ed25519 public
// key, exactly as if one signer had produced it.
//
// Grounded on original_source/crates/journal/src/core/ledger.rs's
// verify_frost_signature / validate_frost_signature_shares, which verify
// the aggregate against the group key and separately replay each
// signer's share for audit purposes.
type ThresholdSignature struct {
	GroupPublicKey []byte
	Aggregate      []byte
	Shares         []SignatureShare
}

// SignatureShare is one signer's partial signature, kept for the audit
// trail even though only the aggregate is cryptographically required.
type SignatureShare struct {
	SignerIndex uint32
	PublicKey   []byte
	Share       []byte
}

// SignatureShareAuditTrail records which shares verified during
// threshold signature validation, per original_source's
// verify_signature_shares_with_audit.
type SignatureShareAuditTrail struct {
	ValidShares   []uint32
	InvalidShares []uint32
	AuthorityLevel int
}

// MinValidShares is the floor enforced by validate_frost_signature_shares
// in the original implementation: below this many independently-verified
// shares, a threshold signature cannot be trusted even if the aggregate
// happens to verify.
const MinValidShares = 2

// VerifyThreshold checks the aggregate signature against the group
// public key, then separately replays each per-signer share for the
// audit trail. The aggregate check is authoritative; the audit trail is
// diagnostic and is used to enforce MinValidShares.
func VerifyThreshold(ts ThresholdSignature, message []byte) (SignatureShareAuditTrail, error) {
	if !VerifySignature(ts.GroupPublicKey, message, ts.Aggregate) {
		return SignatureShareAuditTrail{}, fmt.Errorf("auracrypto: threshold aggregate signature invalid")
	}

	trail := SignatureShareAuditTrail{}
	for _, share := range ts.Shares {
		if VerifySignature(share.PublicKey, message, share.Share) {
			trail.ValidShares = append(trail.ValidShares, share.SignerIndex)
		} else {
			trail.InvalidShares = append(trail.InvalidShares, share.SignerIndex)
		}
	}
	sort.Slice(trail.ValidShares, func(i, j int) bool { return trail.ValidShares[i] < trail.ValidShares[j] })
	sort.Slice(trail.InvalidShares, func(i, j int) bool { return trail.InvalidShares[i] < trail.InvalidShares[j] })
	trail.AuthorityLevel = len(trail.ValidShares)

	// MinValidShares only gates when per-signer shares were actually
	// supplied; the aggregate check above is the cryptographic proof of
	// quorum, Shares is diagnostic audit material layered on top of it.
	if len(ts.Shares) > 0 && len(trail.ValidShares) < MinValidShares {
		return trail, fmt.Errorf("auracrypto: only %d valid signature shares, need at least %d", len(trail.ValidShares), MinValidShares)
	}
	return trail, nil
}

// ValidateSignerIndices checks that every share's signer index is within
// [0, totalSigners) and that no index repeats, mirroring
// validate_signer_indices in the original ledger validation pipeline.
func ValidateSignerIndices(shares []SignatureShare, totalSigners uint32) error {
	seen := make(map[uint32]struct{}, len(shares))
	for _, s := range shares {
		if s.SignerIndex >= totalSigners {
			return fmt.Errorf("auracrypto: signer index %d out of range [0,%d)", s.SignerIndex, totalSigners)
		}
		if _, dup := seen[s.SignerIndex]; dup {
			return fmt.Errorf("auracrypto: duplicate signer index %d", s.SignerIndex)
		}
		seen[s.SignerIndex] = struct{}{}
	}
	return nil
}
