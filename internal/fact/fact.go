// Package fact implements the Fact CRDT from spec §3.1/§4.1: an OR-Set of
// typed add/remove operations over string keys, with a Last-Writer-Wins
// map holding the currently-visible value per key.
package fact

import (
	"fmt"
	"sort"
)

// Capacity bounds from spec §3.1.
const (
	MaxLWWMapEntries  = 65536
	MaxFactOperations = 131072
)

// OpKind distinguishes an Add from a Remove in the OR-Set.
type OpKind uint8

const (
	OpAdd OpKind = iota
	OpRemove
)

// Op is one OR-Set operation. For OpAdd, Value is the inserted value. For
// OpRemove, Target holds the OpID of the specific Add it observed and
// tombstones (Observed-Remove semantics) — a Remove can never be applied
// before the Add it targets exists, by construction of the API (Remove
// only emits ops that reference Adds already present in the set).
type Op struct {
	OpID      string
	Key       string
	Kind      OpKind
	Actor     string
	Timestamp uint64
	Value     Value  // meaningful only when Kind == OpAdd
	Target    string // meaningful only when Kind == OpRemove: the Add's OpID
}

// Less implements the §3.1 total order: (timestamp, op_id), with Adds
// sorting strictly before Removes when timestamps tie. This guarantees a
// Remove is never ordered ahead of the Add it references when both share
// a timestamp.
func (o Op) Less(other Op) bool {
	if o.Timestamp != other.Timestamp {
		return o.Timestamp < other.Timestamp
	}
	if o.Kind != other.Kind {
		return o.Kind == OpAdd // Add < Remove at equal timestamp
	}
	return o.OpID < other.OpID
}

// CapacityExceededError reports a Fact CRDT hitting one of its §3.1
// bounds (LWW entries, total operations, or a Bytes value over 1 MiB).
type CapacityExceededError struct {
	Limit   string
	Current int
	Max     int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("fact: capacity exceeded for %s (%d/%d)", e.Limit, e.Current, e.Max)
}

type lwwEntry struct {
	Timestamp uint64
	Actor     string
	Value     Value
	OpID      string
}

// wins reports whether a candidate (timestamp, actor) pair should replace
// the current LWW entry: compare by timestamp, tie-break lexicographically
// on actor-id (spec §3.1).
func (e lwwEntry) wins(ts uint64, actor string) bool {
	if ts != e.Timestamp {
		return ts > e.Timestamp
	}
	return actor > e.Actor
}

// Fact is the CRDT: an OR-Set of operations plus a derived LWW view.
// The zero value is a ready-to-use empty Fact.
type Fact struct {
	// ops is keyed by a dedup identity distinct for Add vs Remove: Adds by
	// their own OpID, Removes by OpID+"/"+Target, since one logical Remove
	// call can emit several Remove ops (one per currently-visible Add) that
	// legitimately share a caller-supplied OpID.
	ops map[string]Op
	lww map[string]lwwEntry
}

// New returns an empty Fact.
func New() *Fact {
	return &Fact{ops: make(map[string]Op), lww: make(map[string]lwwEntry)}
}

func opKey(o Op) string {
	if o.Kind == OpAdd {
		return "A:" + o.OpID
	}
	return "R:" + o.OpID + "/" + o.Target
}

// Insert appends an Add operation for key and updates the LWW view if
// (timestamp, actor) dominates the current entry, per spec §4.1.
func (f *Fact) Insert(key string, value Value, actor string, timestamp uint64, opID string) error {
	f.ensure()
	if value.Kind == KindBytes && len(value.Bytes) > MaxBytesSize {
		return &CapacityExceededError{Limit: "bytes_value_size", Current: len(value.Bytes), Max: MaxBytesSize}
	}
	if len(f.ops) >= MaxFactOperations {
		return &CapacityExceededError{Limit: "operations", Current: len(f.ops), Max: MaxFactOperations}
	}
	if _, exists := f.lww[key]; !exists && len(f.lww) >= MaxLWWMapEntries {
		return &CapacityExceededError{Limit: "lww_entries", Current: len(f.lww), Max: MaxLWWMapEntries}
	}

	op := Op{OpID: opID, Key: key, Kind: OpAdd, Actor: actor, Timestamp: timestamp, Value: value}
	if _, dup := f.ops[opKey(op)]; dup {
		return nil // idempotent re-insertion of the same Add
	}
	f.ops[opKey(op)] = op

	cur, ok := f.lww[key]
	if !ok {
		f.lww[key] = lwwEntry{Timestamp: timestamp, Actor: actor, Value: value, OpID: opID}
		return nil
	}
	if cur.wins(timestamp, actor) {
		f.lww[key] = lwwEntry{Timestamp: timestamp, Actor: actor, Value: value, OpID: opID}
	} else if cur.Timestamp == timestamp && cur.Actor == actor {
		// Same (timestamp, actor) pair re-observed with a different value:
		// resolve via the value-level join rather than picking arbitrarily.
		merged := cur.Value.Join(value)
		f.lww[key] = lwwEntry{Timestamp: timestamp, Actor: actor, Value: merged, OpID: opID}
	}
	return nil
}

// Remove tombstones every currently-visible Add for key: it appends one
// Remove operation per visible Add op_id, each referencing that Add
// (Observed-Remove semantics), and clears the LWW entry. actor/timestamp
// describe the Remove itself (used for causal ordering and audit); opID
// is the caller-supplied identity for this logical remove call.
func (f *Fact) Remove(key string, actor string, timestamp uint64, opID string) error {
	f.ensure()
	if len(f.ops) >= MaxFactOperations {
		return &CapacityExceededError{Limit: "operations", Current: len(f.ops), Max: MaxFactOperations}
	}

	for _, addID := range f.visibleAddIDs(key) {
		op := Op{OpID: opID, Key: key, Kind: OpRemove, Actor: actor, Timestamp: timestamp, Target: addID}
		f.ops[opKey(op)] = op
	}
	delete(f.lww, key)
	return nil
}

// visibleAddIDs returns the Add op_ids for key that have no matching
// Remove: A \ R from spec §4.1's visibility algorithm.
func (f *Fact) visibleAddIDs(key string) []string {
	var adds []string
	removed := make(map[string]struct{})
	for _, op := range f.ops {
		if op.Key != key {
			continue
		}
		switch op.Kind {
		case OpAdd:
			adds = append(adds, op.OpID)
		case OpRemove:
			removed[op.Target] = struct{}{}
		}
	}
	var visible []string
	for _, id := range adds {
		if _, gone := removed[id]; !gone {
			visible = append(visible, id)
		}
	}
	sort.Strings(visible)
	return visible
}

// ContainsKey reports whether key has at least one visible Add.
func (f *Fact) ContainsKey(key string) bool {
	return len(f.visibleAddIDs(key)) > 0
}

// Get returns the LWW-visible value for key, and whether key is visible.
// Per spec §4.1 invariant, contains_key(k) implies get(k) is some.
func (f *Fact) Get(key string) (Value, bool) {
	f.ensure()
	if !f.ContainsKey(key) {
		return Value{}, false
	}
	entry, ok := f.lww[key]
	if !ok {
		return Value{}, false
	}
	return entry.Value, true
}

// Iter calls fn for every visible (key, value) pair, in deterministic key
// order.
func (f *Fact) Iter(fn func(key string, value Value)) {
	f.ensure()
	keys := make([]string, 0, len(f.lww))
	for k := range f.lww {
		if f.ContainsKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := f.Get(k)
		if ok {
			fn(k, v)
		}
	}
}

// Join returns a new Fact that is the union of this Fact's and other's
// operation sets, with the LWW view recomputed from that union. Join is
// idempotent, commutative, and associative because it depends only on the
// (deduplicated) set of operations, never on which replica contributed
// which op.
func (f *Fact) Join(other *Fact) *Fact {
	f.ensure()
	if other == nil {
		return f.clone()
	}
	other.ensure()

	merged := New()
	for k, op := range f.ops {
		merged.ops[k] = op
	}
	for k, op := range other.ops {
		merged.ops[k] = op
	}
	merged.recomputeLWW()
	return merged
}

// Bottom returns the empty Fact, the join-identity element.
func (f *Fact) Bottom() *Fact { return New() }

func (f *Fact) recomputeLWW() {
	f.lww = make(map[string]lwwEntry)
	// Group visible adds per key, then fold them in ascending Op order so
	// that later (dominating) entries overwrite earlier ones deterministically.
	removed := make(map[string]struct{})
	var adds []Op
	for _, op := range f.ops {
		if op.Kind == OpRemove {
			removed[op.Target] = struct{}{}
		}
	}
	for _, op := range f.ops {
		if op.Kind == OpAdd {
			if _, gone := removed[op.OpID]; !gone {
				adds = append(adds, op)
			}
		}
	}
	sort.Slice(adds, func(i, j int) bool { return adds[i].Less(adds[j]) })

	for _, op := range adds {
		cur, ok := f.lww[op.Key]
		if !ok {
			f.lww[op.Key] = lwwEntry{Timestamp: op.Timestamp, Actor: op.Actor, Value: op.Value, OpID: op.OpID}
			continue
		}
		if cur.wins(op.Timestamp, op.Actor) {
			f.lww[op.Key] = lwwEntry{Timestamp: op.Timestamp, Actor: op.Actor, Value: op.Value, OpID: op.OpID}
		} else if cur.Timestamp == op.Timestamp && cur.Actor == op.Actor {
			merged := cur.Value.Join(op.Value)
			f.lww[op.Key] = lwwEntry{Timestamp: cur.Timestamp, Actor: cur.Actor, Value: merged, OpID: cur.OpID}
		}
	}
}

func (f *Fact) clone() *Fact {
	cp := New()
	for k, v := range f.ops {
		cp.ops[k] = v
	}
	for k, v := range f.lww {
		cp.lww[k] = v
	}
	return cp
}

func (f *Fact) equalVisible(other *Fact) bool {
	if f == nil || other == nil {
		return f == other
	}
	a := map[string]Value{}
	b := map[string]Value{}
	f.Iter(func(k string, v Value) { a[k] = v })
	other.Iter(func(k string, v Value) { b[k] = v })
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (f *Fact) ensure() {
	if f.ops == nil {
		f.ops = make(map[string]Op)
	}
	if f.lww == nil {
		f.lww = make(map[string]lwwEntry)
	}
}

// OpCount returns the number of operations currently stored (adds + removes).
func (f *Fact) OpCount() int {
	f.ensure()
	return len(f.ops)
}

// KeyCount returns the number of entries in the LWW map (visible or not —
// Remove clears entries eagerly, so in practice this equals the visible
// key count).
func (f *Fact) KeyCount() int {
	f.ensure()
	return len(f.lww)
}
