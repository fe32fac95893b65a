package auracrypto

// Zeroize overwrites b's backing array with zeros. Guardian shares, DKG
// sub-shares, and reconstructed secrets must be wiped as soon as their
// holder is done with them, per spec §5's secret hygiene rule.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeAll zeroizes every slice given, in order.
func ZeroizeAll(bs ...[]byte) {
	for _, b := range bs {
		Zeroize(b)
	}
}
