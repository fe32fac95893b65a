package semilattice

import "testing"

// intMax is a trivial join-semilattice over ints (join = max, bottom = 0)
// used to exercise the generic laws without pulling in fact.Fact.
type intMax int

func (m intMax) Join(other intMax) intMax {
	if m > other {
		return m
	}
	return other
}

func (m intMax) Bottom() intMax { return 0 }

// intMin is a trivial meet-semilattice over ints (meet = min, top =
// max int).
type intMin int

func (m intMin) Meet(other intMin) intMin {
	if m < other {
		return m
	}
	return other
}

func (m intMin) Top() intMin { return 1 << 30 }

func TestJoinSemilatticeLaws(t *testing.T) {
	a, b, c := intMax(3), intMax(7), intMax(2)

	if a.Join(b) != b.Join(a) {
		t.Fatal("join must be commutative")
	}
	if (a.Join(b)).Join(c) != a.Join(b.Join(c)) {
		t.Fatal("join must be associative")
	}
	if a.Join(a) != a {
		t.Fatal("join must be idempotent")
	}
	if a.Join(a.Bottom()) != a {
		t.Fatal("bottom must be the join identity")
	}
}

func TestMeetSemilatticeLaws(t *testing.T) {
	a, b, c := intMin(3), intMin(7), intMin(2)

	if a.Meet(b) != b.Meet(a) {
		t.Fatal("meet must be commutative")
	}
	if (a.Meet(b)).Meet(c) != a.Meet(b.Meet(c)) {
		t.Fatal("meet must be associative")
	}
	if a.Meet(a) != a {
		t.Fatal("meet must be idempotent")
	}
	if a.Meet(a.Top()) != a {
		t.Fatal("top must be the meet identity")
	}
}

func TestLessOrEqual(t *testing.T) {
	eq := func(x, y intMax) bool { return x == y }
	if !LessOrEqual(intMax(3), intMax(7), eq) {
		t.Fatal("3 <= 7 under max-join order")
	}
	if LessOrEqual(intMax(7), intMax(3), eq) {
		t.Fatal("7 should not be <= 3 under max-join order")
	}
}

func TestProductJoin(t *testing.T) {
	p1 := Product[intMax, intMin]{Growing: 3, Restricted: 10}
	p2 := Product[intMax, intMin]{Growing: 5, Restricted: 4}

	joined := p1.Join(p2)
	if joined.Growing != 5 {
		t.Fatalf("growing side should take the join (max): got %d", joined.Growing)
	}
	if joined.Restricted != 4 {
		t.Fatalf("restricted side should take the meet (min): got %d", joined.Restricted)
	}
}
