// Package semilattice defines the small set of algebraic interfaces the
// journal is built from: a join-semilattice for monotone knowledge (Fact)
// and a meet-semilattice for monotone restriction (Cap). Everything above
// this package composes these primitives; nothing below it knows about
// facts, capabilities, or events.
package semilattice

// JoinSemilattice is a bounded join-semilattice: Join must be idempotent,
// commutative, and associative, and Bottom must be the identity element
// for Join (x.Join(Bottom()) == x).
type JoinSemilattice[T any] interface {
	Join(other T) T
	Bottom() T
}

// MeetSemilattice is a bounded meet-semilattice: Meet must be idempotent,
// commutative, and associative, and Top must be the identity element for
// Meet (x.Meet(Top()) == x).
type MeetSemilattice[T any] interface {
	Meet(other T) T
	Top() T
}

// Ordering mirrors the three-valued result of a partial order comparison.
// PartialOrder is intentionally distinct from a total order: two elements
// with different issuers, or two op-sets with incomparable visibility, are
// Incomparable rather than forced into an arbitrary rank.
type Ordering int

const (
	Less Ordering = iota
	Equal
	Greater
	Incomparable
)

// PartiallyOrdered is implemented by any lattice element whose order is
// derived from Join or Meet rather than stored directly.
type PartiallyOrdered[T any] interface {
	Compare(other T) Ordering
}

// LessOrEqual reports whether a <= b under the partial order induced by a
// join-semilattice: a <= b iff a.Join(b) == b. Callers supply their own
// equality since T is not comparable in general (e.g. Fact holds a
// map-shaped LWW state).
func LessOrEqual[T JoinSemilattice[T]](a, b T, equal func(x, y T) bool) bool {
	return equal(a.Join(b), b)
}

// MeetLessOrEqual reports whether a <= b under the partial order induced
// by a meet-semilattice (more restricted is "less"): a <= b iff
// a.Meet(b) == a.
func MeetLessOrEqual[T MeetSemilattice[T]](a, b T, equal func(x, y T) bool) bool {
	return equal(a.Meet(b), a)
}

// Product composes a join-semilattice A and a meet-semilattice B into the
// pair type the Journal uses: the first component grows (facts), the
// second shrinks (capabilities). Join is componentwise: the A side joins,
// the B side meets.
type Product[A JoinSemilattice[A], B MeetSemilattice[B]] struct {
	Growing    A
	Restricted B
}

// Join implements the Journal = (Fact, Cap) composition from spec §3.3:
// (a,x) JOIN (b,y) = (a JOIN b, x MEET y).
func (p Product[A, B]) Join(other Product[A, B]) Product[A, B] {
	return Product[A, B]{
		Growing:    p.Growing.Join(other.Growing),
		Restricted: p.Restricted.Meet(other.Restricted),
	}
}
