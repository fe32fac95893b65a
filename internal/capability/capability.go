// Package capability implements the attenuation-ordered capability lattice
// from spec §3.2/§4.2: a Cap is an opaque token plus the root public key
// of its issuer, ordered by how attenuated it is (more attenuation blocks
// means a more restricted, "smaller" token).
package capability

import (
	"bytes"
	"encoding/binary"

	"aura/internal/semilattice"
)

// Cap is a capability token. Token is opaque bytes (the spec fixes shape,
// not the concrete macaroon/biscuit/UCAN encoding); RootKey identifies the
// issuing root so Meet can tell same-issuer tokens from incomparable ones.
type Cap struct {
	Token   []byte
	RootKey []byte
}

// Empty returns the bottom-for-meet capability: the empty token, absorbing
// under Meet regardless of root key.
func Empty() Cap {
	return Cap{}
}

// New constructs a Cap from a token and its issuer's root public key.
func New(token, rootKey []byte) Cap {
	return Cap{Token: cloneBytes(token), RootKey: cloneBytes(rootKey)}
}

// Update replaces the token bytes only, keeping the existing root key —
// e.g. refreshing an attenuation chain's serialization without changing
// who issued it.
func (c Cap) Update(token []byte) Cap {
	return Cap{Token: cloneBytes(token), RootKey: c.RootKey}
}

// UpdateWithKey replaces both the token and the root key, e.g. when
// re-keying to a new issuer.
func (c Cap) UpdateWithKey(token, rootKey []byte) Cap {
	return Cap{Token: cloneBytes(token), RootKey: cloneBytes(rootKey)}
}

func (c Cap) isEmpty() bool {
	return len(c.Token) == 0
}

func (c Cap) sameRoot(other Cap) bool {
	return bytes.Equal(c.RootKey, other.RootKey)
}

func (c Cap) equalToken(other Cap) bool {
	return bytes.Equal(c.Token, other.Token)
}

// BlockCount derives the number of attenuation blocks encoded in the
// token without decrypting or otherwise interpreting its payload: blocks
// are delimited by a single length-prefix framing (4-byte big-endian
// length per block), so the count can be read by walking prefixes alone.
// An empty token has zero blocks.
func (c Cap) BlockCount() int {
	if c.isEmpty() {
		return 0
	}
	count := 0
	buf := c.Token
	for len(buf) >= 4 {
		n := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < n {
			// Malformed/truncated framing: treat the remainder as one
			// final block rather than panicking on attacker input.
			count++
			break
		}
		buf = buf[n:]
		count++
	}
	return count
}

// Meet implements spec §3.2's attenuation meet:
//   - empty MEET anything = empty (bottom absorbs)
//   - different root keys, or either side missing a root key while the
//     other doesn't, meet to bottom (incomparable issuers cannot be
//     restricted against each other), even when the token bytes match
//   - identical tokens under the same root key MEET to the identical token
//   - same root key: the result is whichever token has more attenuation
//     blocks (the more restricted one)
func (c Cap) Meet(other Cap) Cap {
	if c.isEmpty() || other.isEmpty() {
		return Empty()
	}
	if !c.sameRoot(other) {
		return Empty()
	}
	if c.equalToken(other) {
		return c
	}
	if c.BlockCount() >= other.BlockCount() {
		return c
	}
	return other
}

// Top returns the meet-identity element: by convention the capability
// with zero attenuation blocks is the least restricted and would act as
// top for any single root key, but since Cap's Top must be independent of
// a specific issuer, Top is the empty-token form that still carries no
// root key — meeting any Cap against it is only ever used in the
// semilattice law tests, where c.Meet(c.Top()) must equal c for same-root
// pairs; callers needing a concrete per-issuer top should construct a
// zero-block Cap for that root directly.
func (c Cap) Top() Cap {
	return Cap{RootKey: cloneBytes(c.RootKey)}
}

// Compare returns the partial order between two capabilities per spec
// §3.2: empty <= all; different issuers are Incomparable (even with
// identical token bytes); identical tokens under one root are Equal; same
// root key compares by block count (fewer blocks = less restricted =
// Greater, since "more attenuation" sorts lower).
func (c Cap) Compare(other Cap) semilattice.Ordering {
	switch {
	case c.isEmpty() && other.isEmpty():
		return semilattice.Equal
	case c.isEmpty():
		return semilattice.Less
	case other.isEmpty():
		return semilattice.Greater
	case !c.sameRoot(other):
		return semilattice.Incomparable
	case c.equalToken(other):
		return semilattice.Equal
	}

	cb, ob := c.BlockCount(), other.BlockCount()
	switch {
	case cb == ob:
		return semilattice.Equal
	case cb > ob:
		// More blocks = more attenuated = more restricted = "less" in the
		// capability order (attenuation narrows authority).
		return semilattice.Less
	default:
		return semilattice.Greater
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
