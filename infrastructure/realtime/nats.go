package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"

	"github.com/nats-io/nats.go"
)

const natsPendingMessages = 1024

// NatsTransport broadcasts envelopes on a subject every instance subscribes to.
type NatsTransport struct {
	conn    *nats.Conn
	subject string
	relay   relay
}

func NewNatsTransport(conn *nats.Conn, subject string, local contract.ITransport, log *slog.Logger) *NatsTransport {
	return &NatsTransport{conn: conn, subject: subject, relay: relay{local: local, log: log}}
}

func (t *NatsTransport) Publish(_ context.Context, e event.DomainEvent, targets []domain.UserID) error {
	data, err := event.Encode(e, targets)
	if err != nil {
		return err
	}
	if err = t.conn.Publish(t.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", e.Type(), err)
	}
	return nil
}

func (t *NatsTransport) Run(ctx context.Context) error {
	messages := make(chan *nats.Msg, natsPendingMessages)
	sub, err := t.conn.ChanSubscribe(t.subject, messages)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", t.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()
	for {
		select {
		case <-ctx.Done():
			t.relay.log.Debug("Context done, stopping nats relay")
			return nil
		case msg := <-messages:
			t.relay.deliver(ctx, msg.Data)
		}
	}
}

// ConnectNats dials the server with reconnection enabled.
func ConnectNats(url string, log *slog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("chat-core"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
}
