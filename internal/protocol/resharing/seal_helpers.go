package resharing

import "aura/internal/auracrypto"

func sealedEnvelope(msg auracrypto.SealedMessage) []byte {
	data, err := auracrypto.EncodeSealed(msg)
	if err != nil {
		panic(err)
	}
	return data
}

func openSealedEnvelope(recipientPrivateKey, wire, aad []byte) ([]byte, error) {
	msg, err := auracrypto.DecodeSealed(wire)
	if err != nil {
		return nil, err
	}
	return auracrypto.Open(recipientPrivateKey, msg, aad)
}
