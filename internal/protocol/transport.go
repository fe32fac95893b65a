package protocol

import (
	"aura/internal/auracrypto"
	"aura/internal/effects"
	"aura/internal/journal"
)

// ContentTypeChoreography is the transport envelope metadata content
// type for protocol messages (spec §6).
const ContentTypeChoreography = "application/aura-choreography"

func effectsEnvelope(source, destination, sessionID string, event *journal.Event) effects.Envelope {
	payload, err := auracrypto.CanonicalMarshal(event)
	if err != nil {
		// Canonical marshal only fails on encoder misconfiguration, never
		// on well-formed Event values; surfacing an empty payload here
		// would be silently wrong, so this is the one place we accept a
		// panic over swallowing the error.
		panic(err)
	}
	return effects.Envelope{
		Source:      source,
		Destination: destination,
		ContextID:   sessionID,
		Payload:     payload,
		Metadata:    map[string]string{"content-type": ContentTypeChoreography},
	}
}

// decodeEventEnvelope reverses effectsEnvelope for a received envelope.
func decodeEventEnvelope(env effects.Envelope) (*journal.Event, error) {
	var e journal.Event
	if err := auracrypto.CanonicalUnmarshal(env.Payload, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
