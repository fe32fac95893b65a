package auracrypto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalEncMode implements spec §6's canonical CBOR rule: map keys
// sorted lexicographically (CTAP2 canonical ordering), no indefinite-length
// encoding, no floats, integers use the smallest encoding.
var canonicalEncMode = mustCanonicalMode()

func mustCanonicalMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeUnix
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("auracrypto: building canonical CBOR mode: %v", err))
	}
	return mode
}

// CanonicalMarshal serializes v using the deterministic CBOR profile
// events and account-state hashes are computed over.
func CanonicalMarshal(v any) ([]byte, error) {
	return canonicalEncMode.Marshal(v)
}

// CanonicalUnmarshal decodes CBOR produced by CanonicalMarshal.
func CanonicalUnmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
