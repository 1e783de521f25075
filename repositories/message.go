package repositories

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// Key layout
//
//	seq:{chatID}                 -> uint64 big endian, last allocated sequence
//	msg:{chatID}:{seq padded 20} -> messageRecord
//	mid:{messageID}              -> msg key
//	rseq:{chatID}:{userID}       -> uint64 big endian, markSeenUpTo watermark
//
// The 20-digit zero padding keeps lexicographical order equal to sequence order.
func sequenceKey(chatID domain.ChatID) string { return "seq:" + string(chatID) }

func messagePrefix(chatID domain.ChatID) string { return "msg:" + string(chatID) + ":" }

func messageKey(chatID domain.ChatID, seq uint64) string {
	return fmt.Sprintf("%s%020d", messagePrefix(chatID), seq)
}

func messageIDKey(id domain.MessageID) string { return "mid:" + string(id) }

func watermarkPrefix(chatID domain.ChatID) string { return "rseq:" + string(chatID) + ":" }

func watermarkKey(chatID domain.ChatID, userID domain.UserID) string {
	return watermarkPrefix(chatID) + string(userID)
}

type messageRecord struct {
	ID        string   `json:"id"`
	ChatID    string   `json:"chatId"`
	Sequence  uint64   `json:"seq"`
	SenderID  string   `json:"senderId"`
	Content   string   `json:"content,omitempty"`
	FileID    string   `json:"fileId,omitempty"`
	SeenBy    []string `json:"seenBy"`
	CreatedAt int64    `json:"createdAt"`
}

// NextSequence is the atomic get-and-increment of the chat's sequence counter.
// Two transactions allocating on the same chat conflict on this key, so the
// loser is replayed and the sequence stays gapless.
func (t *Txn) NextSequence(chatID domain.ChatID) (uint64, error) {
	current, err := t.getUint64(sequenceKey(chatID))
	if err != nil {
		return 0, err
	}
	next := current + 1
	return next, t.setUint64(sequenceKey(chatID), next)
}

func (t *Txn) LastSequence(chatID domain.ChatID) (uint64, error) {
	return t.getUint64(sequenceKey(chatID))
}

func (t *Txn) PutMessage(msg domain.Message) error {
	key := messageKey(msg.ChatID, msg.Sequence)
	if err := t.putJSON(key, fromMessage(msg)); err != nil {
		return err
	}
	return t.txn.Set([]byte(messageIDKey(msg.ID)), []byte(key))
}

// GetMessage resolves a message by id through the mid: index.
func (t *Txn) GetMessage(id domain.MessageID) (domain.Message, error) {
	key, err := t.getRaw(messageIDKey(id))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return domain.Message{}, fmt.Errorf("message %s: %w", id, errors.ErrNotFound)
		}
		return domain.Message{}, err
	}
	var rec messageRecord
	if err = t.getJSON(string(key), &rec); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return domain.Message{}, fmt.Errorf("message %s: %w", id, errors.ErrNotFound)
		}
		return domain.Message{}, err
	}
	return toMessage(rec), nil
}

// ListMessages returns up to limit messages in descending sequence order.
// When before > 0 only sequences strictly lower than before are returned, which
// keeps pages stable while new messages are appended at the top.
func (t *Txn) ListMessages(chatID domain.ChatID, before uint64, limit int) ([]domain.Message, error) {
	prefix := []byte(messagePrefix(chatID))
	var seekKey []byte
	switch before {
	case 0:
		// Past every padded sequence, then walk backwards
		seekKey = append(prefix, 0xFF)
	case 1:
		return nil, nil
	default:
		seekKey = []byte(messageKey(chatID, before-1))
	}

	options := badger.DefaultIteratorOptions
	options.Reverse = true
	options.PrefetchSize = limit
	it := t.txn.NewIterator(options)
	defer it.Close()

	var messages []domain.Message
	for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
		msg, err := decodeMessage(it.Item())
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ScanMessages returns messages with from <= sequence <= to in ascending order.
func (t *Txn) ScanMessages(chatID domain.ChatID, from, to uint64) ([]domain.Message, error) {
	if from > to {
		return nil, nil
	}
	prefix := []byte(messagePrefix(chatID))
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var messages []domain.Message
	for it.Seek([]byte(messageKey(chatID, from))); it.ValidForPrefix(prefix); it.Next() {
		msg, err := decodeMessage(it.Item())
		if err != nil {
			return nil, err
		}
		if msg.Sequence > to {
			break
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Watermark is the highest sequence a user acknowledged through MarkSeenUpTo.
func (t *Txn) Watermark(chatID domain.ChatID, userID domain.UserID) (uint64, error) {
	return t.getUint64(watermarkKey(chatID, userID))
}

func (t *Txn) SetWatermark(chatID domain.ChatID, userID domain.UserID, seq uint64) error {
	return t.setUint64(watermarkKey(chatID, userID), seq)
}

func (t *Txn) getUint64(key string) (uint64, error) {
	raw, err := t.getRaw(key)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupted counter %s: %d bytes", key, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (t *Txn) setUint64(key string, value uint64) error {
	return t.txn.Set([]byte(key), binary.BigEndian.AppendUint64(nil, value))
}

func decodeMessage(item *badger.Item) (domain.Message, error) {
	var rec messageRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(rec), nil
}

func fromMessage(msg domain.Message) messageRecord {
	return messageRecord{
		ID:        string(msg.ID),
		ChatID:    string(msg.ChatID),
		Sequence:  msg.Sequence,
		SenderID:  string(msg.SenderID),
		Content:   msg.Content,
		FileID:    msg.FileID,
		SeenBy:    lo.Map(msg.SeenBy, func(u domain.UserID, _ int) string { return string(u) }),
		CreatedAt: toUnix(msg.CreatedAt),
	}
}

func toMessage(rec messageRecord) domain.Message {
	return domain.Message{
		ID:        domain.MessageID(rec.ID),
		ChatID:    domain.ChatID(rec.ChatID),
		Sequence:  rec.Sequence,
		SenderID:  domain.UserID(rec.SenderID),
		Content:   rec.Content,
		FileID:    rec.FileID,
		SeenBy:    lo.Map(rec.SeenBy, func(u string, _ int) domain.UserID { return domain.UserID(u) }),
		CreatedAt: fromUnix(rec.CreatedAt),
	}
}
