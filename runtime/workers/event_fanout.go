package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-core/contract"
	"chat-core/domain/event"
)

const DefaultSinkTimeout = 2 * time.Second

// EventFanout drains committed events and delivers each one to the permanent
// sinks (search index) and to the realtime transport for its audience.
//
// Delivery is best-effort: no retries, at most once per connection. A failing
// or slow consumer is logged and skipped once sinkTimeout expires, it never
// stalls message acceptance upstream.
type EventFanout struct {
	log            *slog.Logger
	events         <-chan event.DomainEvent
	permanentSinks []contract.EventSink
	transport      contract.ITransport
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, transport contract.ITransport,
	sinkTimeout time.Duration, permanentSinks ...contract.EventSink) *EventFanout {
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}
	return &EventFanout{
		log:            log,
		events:         events,
		permanentSinks: permanentSinks,
		transport:      transport,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fan-out")
			return nil
		}
	}
}

// Fanout delivers one event. Deliveries happen in order so a session sees the
// events of a chat in commit order.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.permanentSinks {
		w.deliver(ctx, evt, fmt.Sprintf("%T", sink), func(ctx context.Context) error {
			return sink.Consume(ctx, evt)
		})
	}
	targets := evt.Audience()
	if len(targets) == 0 {
		return
	}
	w.deliver(ctx, evt, "transport", func(ctx context.Context) error {
		return w.transport.Publish(ctx, evt, targets)
	})
}

func (w *EventFanout) deliver(ctx context.Context, evt event.DomainEvent, target string, fn func(ctx context.Context) error) {
	deliveryCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := fn(deliveryCtx); err != nil {
		w.log.Error("Event delivery failed", "type", evt.Type(), "target", target, "error", err)
	}
}
