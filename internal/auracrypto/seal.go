package auracrypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"crypto/sha256"
	"io"
)

// SealedMessage is an HPKE-style authenticated ciphertext: an ephemeral
// X25519 public key plus a ChaCha20-Poly1305 sealed box bound to an
// associated-data string. Used for DKG sub-shares (AAD = session_id ||
// to_device_id) and guardian recovery shares (AAD = "recovery:" ||
// session_id), per SPEC_FULL §C and the resharing/recovery
// choreographies in original_source.
type SealedMessage struct {
	EphemeralPublicKey []byte
	Nonce              []byte
	Ciphertext         []byte
}

// Seal encrypts plaintext to recipientPublicKey (a 32-byte X25519 public
// key), binding aad as additional authenticated data that must match
// exactly on Open.
func Seal(recipientPublicKey, plaintext, aad []byte) (SealedMessage, error) {
	if len(recipientPublicKey) != 32 {
		return SealedMessage{}, fmt.Errorf("auracrypto: recipient public key must be 32 bytes")
	}

	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return SealedMessage{}, fmt.Errorf("auracrypto: generating ephemeral key: %w", err)
	}
	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return SealedMessage{}, fmt.Errorf("auracrypto: deriving ephemeral public key: %w", err)
	}
	shared, err := curve25519.X25519(ephPriv[:], recipientPublicKey)
	if err != nil {
		return SealedMessage{}, fmt.Errorf("auracrypto: computing shared secret: %w", err)
	}

	key, err := deriveKey(shared, ephPub, recipientPublicKey)
	if err != nil {
		return SealedMessage{}, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return SealedMessage{}, fmt.Errorf("auracrypto: constructing AEAD: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return SealedMessage{}, fmt.Errorf("auracrypto: generating nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, aad)

	return SealedMessage{EphemeralPublicKey: ephPub, Nonce: nonce, Ciphertext: ct}, nil
}

// Open decrypts a SealedMessage addressed to the holder of
// recipientPrivateKey, verifying aad matches what Seal bound.
func Open(recipientPrivateKey []byte, msg SealedMessage, aad []byte) ([]byte, error) {
	if len(recipientPrivateKey) != 32 {
		return nil, fmt.Errorf("auracrypto: recipient private key must be 32 bytes")
	}
	recipientPublicKey, err := curve25519.X25519(recipientPrivateKey, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("auracrypto: deriving recipient public key: %w", err)
	}
	shared, err := curve25519.X25519(recipientPrivateKey, msg.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("auracrypto: computing shared secret: %w", err)
	}

	key, err := deriveKey(shared, msg.EphemeralPublicKey, recipientPublicKey)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("auracrypto: constructing AEAD: %w", err)
	}
	pt, err := aead.Open(nil, msg.Nonce, msg.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("auracrypto: open failed (wrong key or tampered aad): %w", err)
	}
	return pt, nil
}

// deriveKey runs HKDF-SHA256 over the X25519 shared secret, salted with
// the ephemeral and recipient public keys so a transcript binds to both
// parties' identities (a lightweight stand-in for HPKE's key schedule).
func deriveKey(shared, ephPub, recipientPub []byte) ([]byte, error) {
	salt := append(append([]byte{}, ephPub...), recipientPub...)
	kdf := hkdf.New(sha256.New, shared, salt, []byte("aura-seal-v1"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("auracrypto: deriving key: %w", err)
	}
	return key, nil
}

// GenerateSealingKeypair creates an X25519 keypair for receiving sealed
// messages (device sub-share transport, guardian recovery shares).
func GenerateSealingKeypair() (publicKey, privateKey []byte, err error) {
	priv := make([]byte, 32)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, fmt.Errorf("auracrypto: generating sealing key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("auracrypto: deriving sealing public key: %w", err)
	}
	return pub, priv, nil
}
