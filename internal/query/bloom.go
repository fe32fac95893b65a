package query

import (
	"hash/fnv"
	"math"
)

// bloomFilter is a fixed-size Bloom filter over predicate names, giving
// the engine an O(1) "this predicate possibly has facts" membership
// test per spec §4.8, fronting the (exact, but potentially remote or
// not-yet-warmed) indexed-journal backend. No third-party Bloom filter
// library appears anywhere in the retrieved pack (see DESIGN.md), so
// this is a small from-scratch implementation using the standard
// double-hashing construction (Kirsch/Mitzenmacher): two independent
// FNV-1a hashes of the key combine to simulate k hash functions without
// computing k separate digests.
type bloomFilter struct {
	bits []uint64
	m    uint64 // number of bits
	k    int    // number of hash functions
}

// newBloomFilter sizes the filter for n expected items at false-positive
// rate p, using the standard formulas m = -(n ln p) / (ln 2)^2 and
// k = (m/n) ln 2, each rounded to a usable minimum.
func newBloomFilter(n int, p float64) *bloomFilter {
	if n <= 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	words := (m + 63) / 64
	return &bloomFilter{bits: make([]uint64, words), m: words * 64, k: k}
}

func (b *bloomFilter) hashes(key string) (uint64, uint64) {
	h1 := fnv.New64a()
	h1.Write([]byte(key))
	sum1 := h1.Sum64()

	h2 := fnv.New64a()
	h2.Write([]byte(key))
	h2.Write([]byte{0xff})
	sum2 := h2.Sum64()
	return sum1, sum2
}

// Add records key as present.
func (b *bloomFilter) Add(key string) {
	h1, h2 := b.hashes(key)
	for i := 0; i < b.k; i++ {
		idx := (h1 + uint64(i)*h2) % b.m
		b.bits[idx/64] |= 1 << (idx % 64)
	}
}

// MayContain reports whether key might be present. false is a
// definitive "not present"; true may be a false positive.
func (b *bloomFilter) MayContain(key string) bool {
	h1, h2 := b.hashes(key)
	for i := 0; i < b.k; i++ {
		idx := (h1 + uint64(i)*h2) % b.m
		if b.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}
