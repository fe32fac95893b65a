package query

import "testing"

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	b := newBloomFilter(100, 0.01)
	keys := []string{"device", "guardian", "capability_grant", "session", "commitment_root"}
	for _, k := range keys {
		b.Add(k)
	}
	for _, k := range keys {
		if !b.MayContain(k) {
			t.Fatalf("bloom filter false negative for %q", k)
		}
	}
}

func TestBloomFilterUnaddedKeyLikelyAbsent(t *testing.T) {
	b := newBloomFilter(100, 0.01)
	b.Add("device")
	b.Add("guardian")
	if b.MayContain("never_added_predicate_xyz") {
		t.Fatal("expected unadded key to be reported absent at this fill factor")
	}
}

func TestNewBloomFilterSizingDegeneratesGracefully(t *testing.T) {
	b := newBloomFilter(0, 0)
	if b.m == 0 || b.k == 0 {
		t.Fatalf("expected non-degenerate filter, got m=%d k=%d", b.m, b.k)
	}
	b.Add("x")
	if !b.MayContain("x") {
		t.Fatal("expected added key to be contained")
	}
}
