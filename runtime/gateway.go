package runtime

import (
	"log/slog"

	"chat-core/domain/event"
)

const DefaultEventBufferSize = 1024

// Gateway is the entry point of the realtime fan-out. Services emit committed
// events into it; a fan-out worker drains them. Emit never blocks: when the
// buffer is full the event is dropped, clients reconcile on reconnect.
type Gateway struct {
	events chan event.DomainEvent
	log    *slog.Logger
}

func NewGateway(log *slog.Logger, bufferSize int) *Gateway {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBufferSize
	}
	return &Gateway{events: make(chan event.DomainEvent, bufferSize), log: log}
}

func (g *Gateway) Emit(events ...event.DomainEvent) {
	for _, e := range events {
		select {
		case g.events <- e:
		default:
			g.log.Warn("Event buffer full, dropping event", "type", e.Type())
		}
	}
}

// Events is the stream the fan-out worker consumes.
func (g *Gateway) Events() <-chan event.DomainEvent {
	return g.events
}

// Backlog reports the buffered events and the buffer capacity.
func (g *Gateway) Backlog() (int, int) {
	return len(g.events), cap(g.events)
}
