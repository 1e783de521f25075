package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// KafkaTransport writes envelopes to a topic. Each instance reads the whole
// topic with its own consumer group, so every instance sees every event.
type KafkaTransport struct {
	writer *kafka.Writer
	reader *kafka.Reader
	relay  relay
}

func NewKafkaTransport(brokers []string, topic string, local contract.ITransport, log *slog.Logger) *KafkaTransport {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "chat-core-relay-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MaxBytes:    10e6,
	})
	return &KafkaTransport{writer: writer, reader: reader, relay: relay{local: local, log: log}}
}

// Publish keys by the first target so one user's events stay on a partition.
func (t *KafkaTransport) Publish(ctx context.Context, e event.DomainEvent, targets []domain.UserID) error {
	data, err := event.Encode(e, targets)
	if err != nil {
		return err
	}
	var key []byte
	if len(targets) > 0 {
		key = []byte(targets[0])
	}
	if err = t.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: data, Time: time.Now()}); err != nil {
		return fmt.Errorf("kafka write %s: %w", e.Type(), err)
	}
	return nil
}

func (t *KafkaTransport) Run(ctx context.Context) error {
	for {
		msg, err := t.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.relay.log.Debug("Context done, stopping kafka relay")
				return nil
			}
			return fmt.Errorf("kafka read: %w", err)
		}
		t.relay.deliver(ctx, msg.Value)
	}
}

func (t *KafkaTransport) Close() error {
	return errors.Join(t.writer.Close(), t.reader.Close())
}
