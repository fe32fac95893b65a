package auracrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// SigningKey wraps an Ed25519 keypair. The spec fixes shape (a device
// signing key owned by the ProtocolContext, §6) not algorithm choice;
// Ed25519 stays on crypto/ed25519 rather than a third-party
// implementation — see DESIGN.md for why.
type SigningKey struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateSigningKey creates a fresh Ed25519 keypair.
func GenerateSigningKey() (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &SigningKey{public: pub, private: priv}, nil
}

// SigningKeyFromSeed reconstructs a SigningKey from a 32-byte seed, for
// deterministic test setups and device-identity recovery.
func SigningKeyFromSeed(seed []byte) (*SigningKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("auracrypto: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &SigningKey{public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// PublicKey returns the raw 32-byte Ed25519 public key.
func (k *SigningKey) PublicKey() []byte {
	out := make([]byte, len(k.public))
	copy(out, k.public)
	return out
}

// Sign produces a 64-byte Ed25519 signature over message.
func (k *SigningKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// VerifySignature verifies a 64-byte Ed25519 signature against a raw
// public key.
func VerifySignature(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
