package query

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"aura/internal/capability"
)

// authorizedDevicesQuery is a typed Query[[]string]: it reads device/1
// and device_active/1, joins them with one derived rule, and parses
// the joined ids out as a plain string slice.
type authorizedDevicesQuery struct {
	caps []capability.Cap
}

func (q *authorizedDevicesQuery) RequiredCapabilities() []capability.Cap { return q.caps }

func (q *authorizedDevicesQuery) Dependencies() []PredicatePattern {
	return []PredicatePattern{
		{Predicate: "device", Arity: 1},
		{Predicate: "device_active", Arity: 1},
	}
}

func (q *authorizedDevicesQuery) Program() string {
	return `
	Decl authorized_device(Id) bound [/string].
	authorized_device(Id) :- device(Id), device_active(Id).
	`
}

func (q *authorizedDevicesQuery) ResultQuery() string { return "authorized_device(Id)" }

func (q *authorizedDevicesQuery) ParseResult(bindings []Binding) ([]string, error) {
	out := make([]string, 0, len(bindings))
	for _, b := range bindings {
		id, _ := b["Id"].(string)
		out = append(out, id)
	}
	return out, nil
}

func newDeviceEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(DefaultConfig())
	schema := `
	Decl device(Id) bound [/string].
	Decl device_active(Id) bound [/string].
	`
	if err := e.LoadSchema(schema); err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	facts := []Fact{
		{Predicate: "device", Args: []interface{}{"dev-1"}},
		{Predicate: "device", Args: []interface{}{"dev-2"}},
		{Predicate: "device_active", Args: []interface{}{"dev-1"}},
	}
	if err := e.AddFacts(facts); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}
	return e
}

func TestExecuteJoinsAcrossLoadedFacts(t *testing.T) {
	e := newDeviceEngine(t)
	result, err := Execute(context.Background(), e, nil, &authorizedDevicesQuery{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result) != 1 || result[0] != "dev-1" {
		t.Fatalf("expected [dev-1], got %v", result)
	}
}

func attenuatedCap(rootKey []byte, blocks int) capability.Cap {
	var token []byte
	for i := 0; i < blocks; i++ {
		block := []byte{'b'}
		prefix := make([]byte, 4)
		binary.BigEndian.PutUint32(prefix, uint32(len(block)))
		token = append(token, prefix...)
		token = append(token, block...)
	}
	if blocks == 0 {
		token = []byte{0xAA} // non-empty, but short enough to parse as zero blocks
	}
	return capability.New(token, rootKey)
}

func TestExecuteMissingCapabilityRejectsUncoveredQuery(t *testing.T) {
	e := newDeviceEngine(t)
	root := []byte("root-key")
	required := attenuatedCap(root, 1)
	q := &authorizedDevicesQuery{caps: []capability.Cap{required}}

	_, err := Execute(context.Background(), e, nil, q)
	var missing *MissingCapabilityError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingCapabilityError, got %v", err)
	}
}

func TestExecuteGrantedCapabilityCoversRequired(t *testing.T) {
	e := newDeviceEngine(t)
	root := []byte("root-key")
	required := attenuatedCap(root, 1)
	granted := attenuatedCap(root, 0) // same root, fewer attenuation blocks: covers required
	q := &authorizedDevicesQuery{caps: []capability.Cap{required}}

	result, err := Execute(context.Background(), e, []capability.Cap{granted}, q)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result) != 1 || result[0] != "dev-1" {
		t.Fatalf("expected [dev-1], got %v", result)
	}
}

// unloadedPredicateQuery depends on a predicate the engine never
// declared or loaded facts for, exercising the bloom-filter
// short-circuit path.
type unloadedPredicateQuery struct{}

func (q *unloadedPredicateQuery) RequiredCapabilities() []capability.Cap { return nil }
func (q *unloadedPredicateQuery) Dependencies() []PredicatePattern {
	return []PredicatePattern{{Predicate: "never_declared_predicate_zz", Arity: 1}}
}
func (q *unloadedPredicateQuery) Program() string     { return "" }
func (q *unloadedPredicateQuery) ResultQuery() string { return "" }
func (q *unloadedPredicateQuery) ParseResult(bindings []Binding) ([]string, error) {
	out := make([]string, len(bindings))
	return out, nil
}

func TestExecuteShortCircuitsOnBloomMiss(t *testing.T) {
	e := newDeviceEngine(t)
	result, err := Execute(context.Background(), e, nil, &unloadedPredicateQuery{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty short-circuited result, got %v", result)
	}
}

func TestSnapshotExecuteAgainstFrozenState(t *testing.T) {
	e := newDeviceEngine(t)
	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	// Mutate live state after the snapshot was taken.
	if err := e.AddFacts([]Fact{{Predicate: "device_active", Args: []interface{}{"dev-2"}}}); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}

	liveResult, err := Execute(context.Background(), e, nil, &authorizedDevicesQuery{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(liveResult) != 2 {
		t.Fatalf("expected live state to reflect both active devices, got %v", liveResult)
	}

	snapResult, err := ExecuteAgainstSnapshot(context.Background(), e, nil, &authorizedDevicesQuery{}, snap)
	if err != nil {
		t.Fatalf("ExecuteAgainstSnapshot() error = %v", err)
	}
	if len(snapResult) != 1 || snapResult[0] != "dev-1" {
		t.Fatalf("expected snapshot to reflect pre-mutation state [dev-1], got %v", snapResult)
	}
}

func TestExecuteAgainstNilSnapshotReturnsSnapshotNotAvailable(t *testing.T) {
	e := newDeviceEngine(t)
	_, err := ExecuteAgainstSnapshot(context.Background(), e, nil, &authorizedDevicesQuery{}, nil)
	var notAvailable *SnapshotNotAvailableError
	if !errors.As(err, &notAvailable) {
		t.Fatalf("expected SnapshotNotAvailableError, got %v", err)
	}
}

func TestSnapshotHashIsDeterministicForIdenticalState(t *testing.T) {
	e1 := newDeviceEngine(t)
	e2 := newDeviceEngine(t)

	s1, err := e1.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	s2, err := e2.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if s1.HashHex() != s2.HashHex() {
		t.Fatalf("expected identical fact sets to hash identically: %s != %s", s1.HashHex(), s2.HashHex())
	}
}

func TestAddFactsRejectsUndeclaredPredicate(t *testing.T) {
	e := NewEngine(DefaultConfig())
	err := e.AddFacts([]Fact{{Predicate: "undeclared", Args: []interface{}{"x"}}})
	if err == nil {
		t.Fatal("expected error inserting a fact for an undeclared predicate")
	}
}

func TestAddFactsRejectsArityMismatch(t *testing.T) {
	e := NewEngine(DefaultConfig())
	if err := e.LoadSchema(`Decl device(Id) bound [/string].`); err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	err := e.AddFacts([]Fact{{Predicate: "device", Args: []interface{}{"a", "b"}}})
	if err == nil {
		t.Fatal("expected arity mismatch error")
	}
}
