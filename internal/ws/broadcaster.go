// Room broadcaster: fan-out of one payload to every live connection in a room.
package ws

import (
	"github.com/rs/zerolog"
)

// Broadcaster delivers payloads to every live connection in a room, pruning
// connections whose transport has faulted. It never fails a broadcast because
// of an individual target; delivery errors are logged and the offender is
// removed from the registry.
type Broadcaster struct {
	registry *Registry
	log      zerolog.Logger
}

// NewBroadcaster returns a broadcaster bound to the given registry.
func NewBroadcaster(registry *Registry, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: log}
}

// Broadcast delivers payload to a snapshot of roomID's connections, in
// snapshot (join) order. A failing target is unregistered immediately and
// delivery proceeds to the next one. Broadcasting to an empty room is a valid
// no-op.
//
// No ordering is guaranteed relative to concurrently arriving messages in the
// same room beyond "each message is offered to the snapshot taken at the time
// its broadcast was invoked".
func (b *Broadcaster) Broadcast(roomID string, payload *BroadcastPayload) {
	conns := b.registry.Snapshot(roomID)
	broadcastsTotal.Inc()

	for _, c := range conns {
		if err := c.WriteJSON(payload); err != nil {
			deliveryFailures.Inc()
			b.log.Warn().
				Err(err).
				Str("chat_id", roomID).
				Str("message_id", payload.ID).
				Msg("dropping unreachable connection during broadcast")
			b.registry.Unregister(roomID, c)
		}
	}
}
