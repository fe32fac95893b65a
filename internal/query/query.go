// Package query implements the Datalog-based query engine from spec
// §4.8: a typed Query knows its required capabilities, the predicates it
// depends on, its Datalog program, and how to parse a result-bindings
// table into a typed value. Execution runs on github.com/google/mangle,
// generalized from a fixed code-graph schema to an arbitrary per-query
// program compiled against the engine's base fact schema.
package query

import (
	"time"

	"aura/internal/capability"
	"aura/internal/semilattice"
)

// Config holds engine-wide tunables.
type Config struct {
	FactLimit               int
	QueryTimeout            time.Duration
	BloomFalsePositiveRate  float64
	BloomExpectedPredicates int
}

// DefaultConfig returns production defaults. The bloom false-positive
// budget is fixed at 1% per SPEC_FULL.md §E.1.
func DefaultConfig() Config {
	return Config{
		FactLimit:              100000,
		QueryTimeout:           30 * time.Second,
		BloomFalsePositiveRate: 0.01,
		BloomExpectedPredicates: 256,
	}
}

// PredicatePattern names a predicate and its arity, used both for a
// query's declared dependencies and for bloom-filter membership checks.
type PredicatePattern struct {
	Predicate string
	Arity     int
}

// Binding is one row of column-indexed values produced by rule
// evaluation, keyed by variable name.
type Binding map[string]interface{}

// Fact is a single fact to load into the engine's store, predicate plus
// positional arguments. Distinct from fact.Fact (the CRDT in
// internal/fact) — this Fact is a Datalog atom, not a replicated value.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// Query is a typed value that knows everything Execute needs: the
// capabilities it requires, the predicates it reads (for the bloom
// pre-check), the Datalog program to evaluate, the atom to query for
// the result once evaluation completes, and how to turn the resulting
// bindings into T.
type Query[T any] interface {
	RequiredCapabilities() []capability.Cap
	Dependencies() []PredicatePattern
	// Program returns Mangle source: declarations and rules this query
	// needs beyond the engine's base schema (may be empty if the query
	// only reads already-declared predicates).
	Program() string
	// ResultQuery returns the atom to evaluate for the final answer,
	// e.g. "active_device(X)" (no trailing '?' or '.' required).
	ResultQuery() string
	ParseResult(bindings []Binding) (T, error)
}

// held covers required when held authorizes everything required
// authorizes: same root key and no more attenuated (fewer-or-equal
// attenuation blocks), or required is the bottom (empty) capability,
// which every held capability — including another empty one — covers.
func held(heldCap, required capability.Cap) bool {
	switch heldCap.Compare(required) {
	case semilattice.Greater, semilattice.Equal:
		return true
	default:
		return false
	}
}

// authorized reports whether some capability in granted covers required.
func authorized(granted []capability.Cap, required capability.Cap) bool {
	for _, g := range granted {
		if held(g, required) {
			return true
		}
	}
	return false
}
