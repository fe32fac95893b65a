package auracrypto

import "fmt"

// sealWireForm is SealedMessage's on-the-wire shape for embedding inside
// an event payload's opaque []byte fields (DistributeSubSharePayload,
// SubmitRecoverySharePayload).
type sealWireForm struct {
	EphemeralPublicKey []byte `cbor:"e"`
	Nonce              []byte `cbor:"n"`
	Ciphertext         []byte `cbor:"c"`
}

// EncodeSealed serializes a SealedMessage for wire transport.
func EncodeSealed(msg SealedMessage) ([]byte, error) {
	return CanonicalMarshal(sealWireForm{
		EphemeralPublicKey: msg.EphemeralPublicKey,
		Nonce:              msg.Nonce,
		Ciphertext:         msg.Ciphertext,
	})
}

// DecodeSealed reverses EncodeSealed.
func DecodeSealed(data []byte) (SealedMessage, error) {
	var w sealWireForm
	if err := CanonicalUnmarshal(data, &w); err != nil {
		return SealedMessage{}, fmt.Errorf("auracrypto: decoding sealed message: %w", err)
	}
	return SealedMessage{EphemeralPublicKey: w.EphemeralPublicKey, Nonce: w.Nonce, Ciphertext: w.Ciphertext}, nil
}
