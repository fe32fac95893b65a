package fact

import "testing"

func TestInsertGetVisible(t *testing.T) {
	f := New()
	if err := f.Insert("k1", StringValue("v1"), "A", 1, "op1"); err != nil {
		t.Fatal(err)
	}
	v, ok := f.Get("k1")
	if !ok {
		t.Fatal("k1 should be visible")
	}
	if v.Str != "v1" {
		t.Fatalf("expected v1, got %q", v.Str)
	}
	if !f.ContainsKey("k1") {
		t.Fatal("ContainsKey should match Get visibility")
	}
}

func TestRemoveHidesKey(t *testing.T) {
	f := New()
	f.Insert("k1", StringValue("v1"), "A", 1, "op1")
	f.Remove("k1", "A", 2, "op2")
	if f.ContainsKey("k1") {
		t.Fatal("k1 should no longer be visible after remove")
	}
	if _, ok := f.Get("k1"); ok {
		t.Fatal("Get should return false for removed key")
	}
}

func TestConcurrentAddWinsAgainstConcurrentRemove(t *testing.T) {
	// Classic OR-Set guarantee: a Remove only tombstones the Adds it has
	// observed. A concurrent Add (unknown to the Remove) must survive the
	// join.
	replicaA := New()
	replicaA.Insert("k1", StringValue("v1"), "A", 1, "add1")

	replicaB := replicaA.clone()
	replicaB.Remove("k1", "B", 2, "rm1")

	replicaA.Insert("k1", StringValue("v2"), "A", 3, "add2")

	joined := replicaA.Join(replicaB)
	if !joined.ContainsKey("k1") {
		t.Fatal("concurrent add must survive join against a remove that didn't observe it")
	}
	v, _ := joined.Get("k1")
	if v.Str != "v2" {
		t.Fatalf("expected the later concurrent add's value v2, got %q", v.Str)
	}
}

// TestFactJoinCommutes is scenario S1 from spec §8.
func TestFactJoinCommutes(t *testing.T) {
	a := New()
	a.Insert("k1", StringValue("v1"), "A", 1, "op-a")

	b := New()
	b.Insert("k1", StringValue("v2"), "B", 1, "op-b")

	ab := a.Join(b)
	ba := b.Join(a)

	if !ab.equalVisible(ba) {
		t.Fatal("join(a,b) must equal join(b,a)")
	}

	v, ok := ab.Get("k1")
	if !ok {
		t.Fatal("k1 should be visible")
	}
	if v.Str != "v2" {
		t.Fatalf("tie-break should favor actor B lexicographically, got %q", v.Str)
	}
}

func TestJoinSemilatticeLaws(t *testing.T) {
	a := New()
	a.Insert("k1", StringValue("v1"), "A", 1, "a1")
	b := New()
	b.Insert("k2", StringValue("v2"), "B", 2, "b1")
	c := New()
	c.Insert("k3", StringValue("v3"), "C", 3, "c1")

	if !a.Join(b).equalVisible(b.Join(a)) {
		t.Fatal("join must be commutative")
	}
	if !a.Join(b).Join(c).equalVisible(a.Join(b.Join(c))) {
		t.Fatal("join must be associative")
	}
	if !a.Join(a).equalVisible(a) {
		t.Fatal("join must be idempotent")
	}
	if !a.Join(a.Bottom()).equalVisible(a) {
		t.Fatal("join with bottom must be identity")
	}
}

func TestCapacityExceededBytes(t *testing.T) {
	f := New()
	big := make([]byte, MaxBytesSize+1)
	err := f.Insert("k", BytesValue(big), "A", 1, "op1")
	if err == nil {
		t.Fatal("expected capacity error for oversized bytes value")
	}
	var capErr *CapacityExceededError
	if !asCapacityErr(err, &capErr) {
		t.Fatalf("expected CapacityExceededError, got %T: %v", err, err)
	}
}

func asCapacityErr(err error, target **CapacityExceededError) bool {
	if ce, ok := err.(*CapacityExceededError); ok {
		*target = ce
		return true
	}
	return false
}

func TestValueJoinByKind(t *testing.T) {
	if got := NumberValue(3).Join(NumberValue(7)); got.Num != 7 {
		t.Fatalf("number join should take max, got %d", got.Num)
	}
	if got := StringValue("abc").Join(StringValue("xyz")); got.Str != "xyz" {
		t.Fatalf("string join should take max lex, got %q", got.Str)
	}
	s := SetValue("a", "b").Join(SetValue("b", "c"))
	if len(s.Set) != 3 {
		t.Fatalf("set join should union, got %d members", len(s.Set))
	}
}

func TestNestedValueRecursiveJoin(t *testing.T) {
	inner1 := New()
	inner1.Insert("x", NumberValue(1), "A", 1, "i1")
	inner2 := New()
	inner2.Insert("y", NumberValue(2), "B", 1, "i2")

	merged := NestedValue(inner1).Join(NestedValue(inner2))
	if merged.Nested.KeyCount() != 2 {
		t.Fatalf("expected both nested keys present, got %d", merged.Nested.KeyCount())
	}
}
