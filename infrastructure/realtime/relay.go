// Package realtime carries committed events to connected clients: websocket
// sessions on this instance, and broker transports between instances.
package realtime

import (
	"context"
	"log/slog"
	"time"

	"chat-core/contract"
	"chat-core/domain/event"
)

const relayDeliveryTimeout = 2 * time.Second

// relay decodes an envelope received from a broker and hands it to the
// sessions connected to this instance.
type relay struct {
	local contract.ITransport
	log   *slog.Logger
}

func (r relay) deliver(ctx context.Context, data []byte) {
	evt, targets, err := event.Decode(data)
	if err != nil {
		r.log.Warn("Dropping undecodable envelope", "error", err)
		return
	}
	deliveryCtx, cancel := context.WithTimeout(ctx, relayDeliveryTimeout)
	defer cancel()
	if err = r.local.Publish(deliveryCtx, evt, targets); err != nil {
		r.log.Error("Local delivery failed", "type", evt.Type(), "error", err)
	}
}
