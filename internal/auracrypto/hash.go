// Package auracrypto collects the cryptographic primitives the journal and
// protocol layers build on: BLAKE3 hashing, canonical deterministic CBOR
// encoding, Ed25519 signing, a FROST-compatible threshold signature
// verifier, Shamir secret sharing with Lagrange interpolation, and
// HPKE-style authenticated sealing for sub-shares and recovery shares.
// Spec §1 fixes protocol shape, not primitive choice, so the concrete
// curve/hash choices here are an implementation decision, not a
// requirement.
package auracrypto

import (
	"github.com/zeebo/blake3"
)

// HashSize is the BLAKE3 digest size used throughout (32 bytes).
const HashSize = 32

// Hash computes the BLAKE3 digest of data.
func Hash(data []byte) [HashSize]byte {
	var out [HashSize]byte
	sum := blake3.Sum256(data)
	copy(out[:], sum[:])
	return out
}

// HashMulti hashes the concatenation of several byte slices without
// allocating an intermediate buffer, for call sites that build a hash
// input out of several distinct fields (e.g. guardian recovery AAD).
func HashMulti(parts ...[]byte) [HashSize]byte {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
