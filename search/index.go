// Package search keeps a bluge full-text index of chat messages.
// The index is fed from committed MessageSent events, so it trails the store.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"chat-core/domain"
	"chat-core/domain/event"

	"github.com/blugelabs/bluge"
)

const (
	fieldChatID   = "chat_id"
	fieldSenderID = "sender_id"
	fieldContent  = "content"
	fieldSequence = "sequence"
)

type Hit struct {
	MessageID domain.MessageID
	ChatID    domain.ChatID
	Sequence  uint64
	Score     float64
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Consume indexes sent messages and ignores every other event.
func (m *MessageIndex) Consume(_ context.Context, e event.DomainEvent) error {
	sent, ok := e.(event.MessageSent)
	if !ok || sent.Content == "" {
		return nil
	}
	return m.Index(sent)
}

func (m *MessageIndex) Index(sent event.MessageSent) error {
	doc := bluge.NewDocument(string(sent.MessageID)).
		AddField(bluge.NewKeywordField(fieldChatID, string(sent.ChatID)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSenderID, string(sent.SenderID)).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, sent.Content)).
		AddField(bluge.NewNumericField(fieldSequence, float64(sent.Sequence)).StoreValue().Sortable())
	if err := m.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", sent.MessageID, err)
	}
	return nil
}

// Search returns the best matches inside one chat, highest score first.
func (m *MessageIndex) Search(ctx context.Context, chatID domain.ChatID, query Query) ([]Hit, error) {
	if query.IsEmpty() {
		return nil, nil
	}
	reader, err := m.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			m.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(chatID)).SetField(fieldChatID))
	if query.Terms != "" {
		q.AddMust(bluge.NewMatchQuery(query.Terms).SetField(fieldContent))
	}
	if query.From != "" {
		q.AddMust(bluge.NewTermQuery(query.From).SetField(fieldSenderID))
	}
	request := bluge.NewTopNSearch(query.Limit, q).SortBy([]string{"-_score", "-" + fieldSequence})

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search chat %s: %w", chatID, err)
	}
	var hits []Hit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = domain.MessageID(value)
			case fieldChatID:
				hit.ChatID = domain.ChatID(value)
			case fieldSequence:
				if seq, decodeErr := bluge.DecodeNumericFloat64(value); decodeErr == nil {
					hit.Sequence = uint64(seq)
				}
			}
			return true
		})
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("read search results: %w", err)
	}
	return hits, nil
}

func (m *MessageIndex) Close() error {
	return m.writer.Close()
}
