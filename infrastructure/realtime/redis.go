package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"

	"github.com/redis/go-redis/v9"
)

// RedisTransport publishes envelopes on a pub/sub channel. Every instance
// runs the transport as a worker to relay what it receives to its sessions.
type RedisTransport struct {
	client  *redis.Client
	channel string
	relay   relay
}

func NewRedisTransport(client *redis.Client, channel string, local contract.ITransport, log *slog.Logger) *RedisTransport {
	return &RedisTransport{client: client, channel: channel, relay: relay{local: local, log: log}}
}

func (t *RedisTransport) Publish(ctx context.Context, e event.DomainEvent, targets []domain.UserID) error {
	data, err := event.Encode(e, targets)
	if err != nil {
		return err
	}
	if err = t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", e.Type(), err)
	}
	return nil
}

func (t *RedisTransport) Run(ctx context.Context) error {
	sub := t.client.Subscribe(ctx, t.channel)
	defer func() { _ = sub.Close() }()
	// Fail fast so the supervisor restarts on an unreachable server
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe %s: %w", t.channel, err)
	}
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			t.relay.log.Debug("Context done, stopping redis relay")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", t.channel)
			}
			t.relay.deliver(ctx, []byte(msg.Payload))
		}
	}
}
