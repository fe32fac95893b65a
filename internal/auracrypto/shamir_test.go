package auracrypto

import (
	"bytes"
	"testing"
)

func TestSplitAndReconstructSecret(t *testing.T) {
	secret := make([]byte, 32)
	copy(secret, []byte("a 32 byte secret for testing!!!"))

	shares, err := SplitSecret(secret, 3, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(shares) != 5 {
		t.Fatalf("expected 5 shares, got %d", len(shares))
	}

	// Any 3 of the 5 shares should reconstruct the secret.
	subset := []Share{shares[0], shares[2], shares[4]}
	recovered, err := ReconstructSecret(subset)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recovered, secret) {
		t.Fatalf("reconstructed secret mismatch: %x != %x", recovered, secret)
	}
}

func TestReconstructSecretDifferentSubsetsAgree(t *testing.T) {
	secret := make([]byte, 32)
	copy(secret, []byte("another secret padded to 32 byt"))

	shares, err := SplitSecret(secret, 2, 4)
	if err != nil {
		t.Fatal(err)
	}

	r1, err := ReconstructSecret([]Share{shares[0], shares[1]})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := ReconstructSecret([]Share{shares[2], shares[3]})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r1, r2) {
		t.Fatal("any threshold-sized subset must reconstruct the same secret")
	}
	if !bytes.Equal(r1, secret) {
		t.Fatal("reconstructed secret must equal the original")
	}
}

func TestSplitSecretRejectsInvalidParams(t *testing.T) {
	secret := make([]byte, 32)
	if _, err := SplitSecret(secret, 0, 3); err == nil {
		t.Fatal("expected error for threshold < 1")
	}
	if _, err := SplitSecret(secret, 5, 3); err == nil {
		t.Fatal("expected error when totalShares < threshold")
	}
}
