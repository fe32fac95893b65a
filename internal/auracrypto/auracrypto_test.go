package auracrypto

import (
	"bytes"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	if a != b {
		t.Fatal("hash must be deterministic")
	}
	c := Hash([]byte("world"))
	if a == c {
		t.Fatal("distinct inputs should not collide")
	}
}

func TestHashMultiMatchesConcat(t *testing.T) {
	a := HashMulti([]byte("foo"), []byte("bar"))
	b := Hash([]byte("foobar"))
	if a != b {
		t.Fatal("HashMulti should hash the concatenation of its parts")
	}
}

func TestCanonicalMarshalRoundTrip(t *testing.T) {
	type payload struct {
		B int    `cbor:"b"`
		A string `cbor:"a"`
	}
	in := payload{B: 2, A: "x"}
	data, err := CanonicalMarshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out payload
	if err := CanonicalUnmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestCanonicalMarshalDeterministic(t *testing.T) {
	type payload struct {
		Z int `cbor:"z"`
		A int `cbor:"a"`
	}
	d1, _ := CanonicalMarshal(payload{Z: 1, A: 2})
	d2, _ := CanonicalMarshal(payload{Z: 1, A: 2})
	if !bytes.Equal(d1, d2) {
		t.Fatal("canonical encoding must be deterministic across calls")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := GenerateSigningKey()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("journal event")
	sig := key.Sign(msg)
	if !VerifySignature(key.PublicKey(), msg, sig) {
		t.Fatal("signature should verify against the signer's own public key")
	}
	if VerifySignature(key.PublicKey(), []byte("tampered"), sig) {
		t.Fatal("signature should not verify against a different message")
	}
}

func TestSigningKeyFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	k1, err := SigningKeyFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := SigningKeyFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1.PublicKey(), k2.PublicKey()) {
		t.Fatal("same seed must produce the same public key")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	pub, priv, err := GenerateSealingKeypair()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("dkg-sub-share")
	aad := []byte("session-1||device-2")

	sealed, err := Seal(pub, plaintext, aad)
	if err != nil {
		t.Fatal(err)
	}
	opened, err := Open(priv, sealed, aad)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened plaintext mismatch: %q != %q", opened, plaintext)
	}
}

func TestSealOpenRejectsWrongAAD(t *testing.T) {
	pub, priv, err := GenerateSealingKeypair()
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := Seal(pub, []byte("secret"), []byte("aad-a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(priv, sealed, []byte("aad-b")); err == nil {
		t.Fatal("open should fail when aad does not match what was sealed")
	}
}

func TestSealOpenRejectsWrongKey(t *testing.T) {
	pub, _, err := GenerateSealingKeypair()
	if err != nil {
		t.Fatal(err)
	}
	_, wrongPriv, err := GenerateSealingKeypair()
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := Seal(pub, []byte("secret"), []byte("aad"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(wrongPriv, sealed, []byte("aad")); err == nil {
		t.Fatal("open should fail under the wrong private key")
	}
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zeroize(b)
	for _, v := range b {
		if v != 0 {
			t.Fatal("Zeroize should clear every byte")
		}
	}
}
