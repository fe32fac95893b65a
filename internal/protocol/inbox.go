package protocol

import (
	"context"
	"errors"

	"aura/internal/effects"
)

// PumpInbox drains every envelope currently queued for the local device,
// decodes each as a journal event, and applies it to the local log.
// Choreographies never call this directly; AwaitEvent and CheckForEvent
// pump the inbox before checking the log, so a peer's broadcast becomes
// locally visible without a separate receiver goroutine.
func (c *Context) PumpInbox(ctx context.Context) (int, error) {
	deviceCount := len(c.Log.State().ActiveDevices())
	applied := 0
	for {
		env, err := c.Effects.Transport.ReceiveEnvelope(ctx, c.LocalDeviceID)
		if errors.Is(err, effects.ErrNoMessage) {
			return applied, nil
		}
		if err != nil {
			return applied, err
		}
		event, err := decodeEventEnvelope(env)
		if err != nil {
			continue // malformed envelope: drop, don't wedge the pump
		}
		if err := c.Log.Append(event, false, deviceCount); err != nil {
			continue // rejected by validation or apply (Append has no duplicate check): drop it
		}
		applied++
	}
}
