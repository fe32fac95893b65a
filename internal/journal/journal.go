package journal

import (
	"aura/internal/capability"
	"aura/internal/fact"
	"aura/internal/semilattice"
)

// Journal is the product of a growing Fact and a shrinking Cap (spec
// §3.3): `(a,x) ⊔ (b,y) = (a⊔b, x⊓y)`. A restricted view attenuates caps
// while preserving facts.
type Journal = semilattice.Product[*fact.Fact, capability.Cap]

// NewJournal builds a Journal from a Fact and a Cap.
func NewJournal(facts *fact.Fact, cap capability.Cap) Journal {
	return Journal{Growing: facts, Restricted: cap}
}

// EmptyJournal returns an empty Fact paired with the empty Cap — the safe
// default before any capability has been granted. The empty Fact is the
// identity for the fact side of Join, but the empty Cap absorbs under
// Meet, so joining any Journal with EmptyJournal() leaves its facts
// unchanged and empties its capability.
func EmptyJournal() Journal {
	return Journal{Growing: fact.New(), Restricted: capability.Empty()}
}
