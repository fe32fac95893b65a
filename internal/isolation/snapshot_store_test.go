package isolation

import (
	"testing"

	"aura/internal/query"
)

func newTestEngine(t *testing.T) *query.Engine {
	t.Helper()
	e := query.NewEngine(query.DefaultConfig())
	if err := e.LoadSchema(`Decl device(Id) bound [/string].`); err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	return e
}

func TestSnapshotStorePutAndGet(t *testing.T) {
	e := newTestEngine(t)
	if err := e.AddFacts([]query.Fact{{Predicate: "device", Args: []interface{}{"dev-1"}}}); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}
	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	store := NewSnapshotStore(10)
	store.Put(snap)

	got := store.Get(snap.HashHex())
	if got == nil {
		t.Fatal("expected snapshot retrievable by its own hash")
	}
	if got.HashHex() != snap.HashHex() {
		t.Fatalf("expected hash %s, got %s", snap.HashHex(), got.HashHex())
	}
}

func TestSnapshotStoreMissingHashReturnsNil(t *testing.T) {
	store := NewSnapshotStore(10)
	if got := store.Get("deadbeef"); got != nil {
		t.Fatal("expected nil for an unregistered hash")
	}
}

func TestSnapshotStoreEvictsOldestOverCapacity(t *testing.T) {
	e := newTestEngine(t)
	store := NewSnapshotStore(2)

	var hashes []string
	devices := []string{"dev-1", "dev-2", "dev-3"}
	for _, d := range devices {
		if err := e.AddFacts([]query.Fact{{Predicate: "device", Args: []interface{}{d}}}); err != nil {
			t.Fatalf("AddFacts() error = %v", err)
		}
		snap, err := e.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		store.Put(snap)
		hashes = append(hashes, snap.HashHex())
	}

	if got := store.Get(hashes[0]); got != nil {
		t.Fatal("expected the oldest snapshot to have been evicted")
	}
	if got := store.Get(hashes[2]); got == nil {
		t.Fatal("expected the newest snapshot to still be present")
	}
}
