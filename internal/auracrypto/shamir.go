package auracrypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cronokirby/saferith"
)

// edwardsOrderBytes is L = 2^252 + 27742317777372353535851937790883648493,
// the order of the Ed25519 scalar field. Shares and coefficients for
// guardian/device secret sharing live in Z_L, matching the field the
// Ed25519 signing scalar itself is reduced into.
var edwardsOrderBytes = []byte{
	0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x14, 0xde, 0xf9, 0xde, 0xa2, 0xf7, 0x9c, 0xd6,
	0x58, 0x12, 0x63, 0x1a, 0x5c, 0xf5, 0xd3, 0xed,
}

var scalarModulus = saferith.ModulusFromBytes(edwardsOrderBytes)

// Share is one participant's point on the sharing polynomial: (x, f(x))
// both reduced mod the scalar field order.
type Share struct {
	Index uint32
	Value []byte // 32-byte big-endian scalar
}

// SplitSecret generates a (threshold, totalShares) Shamir sharing of
// secret over Z_L: a degree-(threshold-1) polynomial with secret as the
// constant term and random coefficients, evaluated at x = 1..totalShares.
//
// Grounded on original_source's resharing/recovery choreographies, which
// describe "degree = new_threshold - 1" polynomials distributed to
// participants; the field arithmetic itself uses saferith for
// constant-time reduction, matching the library the rest of the pack
// reaches for when it needs non-crypto/big modular arithmetic with
// secret operands.
func SplitSecret(secret []byte, threshold, totalShares int) ([]Share, error) {
	if threshold < 1 || totalShares < threshold {
		return nil, fmt.Errorf("auracrypto: invalid threshold/totalShares %d/%d", threshold, totalShares)
	}
	secretNat := new(saferith.Nat).SetBytes(secret)
	secretNat.Mod(secretNat, scalarModulus)

	coeffs := make([]*saferith.Nat, threshold)
	coeffs[0] = secretNat
	for i := 1; i < threshold; i++ {
		c, err := randomScalar()
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	shares := make([]Share, totalShares)
	for x := 1; x <= totalShares; x++ {
		val := evalPolynomial(coeffs, uint64(x))
		shares[x-1] = Share{Index: uint32(x), Value: padTo32(val.Bytes())}
	}
	return shares, nil
}

// evalPolynomial computes sum(coeffs[i] * x^i) mod L using Horner's method.
func evalPolynomial(coeffs []*saferith.Nat, x uint64) *saferith.Nat {
	xNat := new(saferith.Nat).SetUint64(x)
	acc := new(saferith.Nat).SetUint64(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc = new(saferith.Nat).ModMul(acc, xNat, scalarModulus)
		acc = new(saferith.Nat).ModAdd(acc, coeffs[i], scalarModulus)
	}
	return acc
}

// ReconstructSecret performs Lagrange interpolation at x = 0 over the
// given shares to recover the polynomial's constant term.
func ReconstructSecret(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("auracrypto: cannot reconstruct from zero shares")
	}
	acc := new(saferith.Nat).SetUint64(0)
	for i, si := range shares {
		numerator := new(saferith.Nat).SetUint64(1)
		denominator := new(saferith.Nat).SetUint64(1)
		xi := new(saferith.Nat).SetUint64(uint64(si.Index))
		zero := new(saferith.Nat).SetUint64(0)
		for j, sj := range shares {
			if i == j {
				continue
			}
			xj := new(saferith.Nat).SetUint64(uint64(sj.Index))
			// numerator *= (0 - xj) = -xj mod L
			negXj := new(saferith.Nat).ModSub(zero, xj, scalarModulus)
			numerator = new(saferith.Nat).ModMul(numerator, negXj, scalarModulus)
			// denominator *= (xi - xj)
			diff := new(saferith.Nat).ModSub(xi, xj, scalarModulus)
			denominator = new(saferith.Nat).ModMul(denominator, diff, scalarModulus)
		}
		denomInv := new(saferith.Nat).ModInverse(denominator, scalarModulus)
		lagrangeCoeff := new(saferith.Nat).ModMul(numerator, denomInv, scalarModulus)

		yi := new(saferith.Nat).SetBytes(si.Value)
		term := new(saferith.Nat).ModMul(yi, lagrangeCoeff, scalarModulus)
		acc = new(saferith.Nat).ModAdd(acc, term, scalarModulus)
	}
	return padTo32(acc.Bytes()), nil
}

func randomScalar() (*saferith.Nat, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("auracrypto: generating random coefficient: %w", err)
	}
	n := new(saferith.Nat).SetBytes(buf)
	n.Mod(n, scalarModulus)
	return n, nil
}

func padTo32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
