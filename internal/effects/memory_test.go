package effects

import (
	"context"
	"testing"
)

func TestFixedClockAdvance(t *testing.T) {
	c := NewFixedClock(100)
	if c.NowMillis() != 100 {
		t.Fatalf("expected 100, got %d", c.NowMillis())
	}
	c.Advance(50)
	if c.NowMillis() != 150 {
		t.Fatalf("expected 150, got %d", c.NowMillis())
	}
}

func TestSeededRNGDeterministic(t *testing.T) {
	r1 := NewSeededRNG([]byte{1, 2, 3})
	r2 := NewSeededRNG([]byte{1, 2, 3})
	buf1 := make([]byte, 8)
	buf2 := make([]byte, 8)
	r1.Read(buf1)
	r2.Read(buf2)
	for i := range buf1 {
		if buf1[i] != buf2[i] {
			t.Fatal("same seed must produce the same byte stream")
		}
	}
}

func TestMemoryTransportSendReceive(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	env := Envelope{Source: "a", Destination: "b", Payload: []byte("hi")}
	if err := tr.SendEnvelope(ctx, env); err != nil {
		t.Fatal(err)
	}
	got, err := tr.ReceiveEnvelope(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Payload) != "hi" {
		t.Fatalf("expected hi, got %q", got.Payload)
	}
	if _, err := tr.ReceiveEnvelope(ctx, "b"); err != ErrNoMessage {
		t.Fatalf("expected ErrNoMessage on empty queue, got %v", err)
	}
}

func TestMemoryTransportRequeuePrioritized(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	tr.SendEnvelope(ctx, Envelope{Destination: "b", Payload: []byte("first")})
	requeued := Envelope{Destination: "b", Payload: []byte("requeued")}
	tr.RequeueEnvelope(ctx, requeued)

	got, err := tr.ReceiveEnvelope(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Payload) != "requeued" {
		t.Fatalf("requeued envelope should be received first, got %q", got.Payload)
	}
}

func TestMemoryStorageStoreRetrieveDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	if err := s.Store(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, err := s.Retrieve(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "v" {
		t.Fatalf("expected v, got %q", v)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Retrieve(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
