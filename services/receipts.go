package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/repositories"
)

// MessageSeenHook runs inside the transaction that records read receipts.
// messages only holds the ones userID had not seen before.
type MessageSeenHook interface {
	OnMessageSeen(ctx context.Context, tx *repositories.Txn, userID domain.UserID, messages []domain.Message) ([]event.DomainEvent, error)
}

type IReceiptTracker interface {
	MarkSeen(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID, userID domain.UserID) error
	MarkSeenUpTo(ctx context.Context, chatID domain.ChatID, userID domain.UserID, upToSequence uint64) (int, error)
	GetSeenBy(ctx context.Context, messageID domain.MessageID) ([]domain.UserID, error)
}

// ReceiptTracker grows the seen-by set of messages. Marking twice is a no-op.
type ReceiptTracker struct {
	store   *repositories.Store
	emitter contract.IEmitter
	hooks   []MessageSeenHook
	log     *slog.Logger
}

func NewReceiptTracker(store *repositories.Store, emitter contract.IEmitter, log *slog.Logger,
	hooks ...MessageSeenHook) *ReceiptTracker {
	return &ReceiptTracker{store: store, emitter: emitter, hooks: hooks, log: log}
}

func (r *ReceiptTracker) MarkSeen(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID, userID domain.UserID) error {
	var events []event.DomainEvent
	err := r.store.Update(func(tx *repositories.Txn) error {
		events = nil
		chat, err := r.memberChat(tx, chatID, userID)
		if err != nil {
			return err
		}
		msg, err := tx.GetMessage(messageID)
		if err != nil {
			return err
		}
		if msg.ChatID != chatID {
			return fmt.Errorf("message %s in chat %s: %w", messageID, chatID, errors.ErrNotFound)
		}
		events, err = r.markMessages(ctx, tx, chat, userID, []domain.Message{msg})
		return err
	})
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	r.emitter.Emit(events...)
	return nil
}

// MarkSeenUpTo marks every message of the chat with sequence <= upToSequence.
// Zero means the whole history. It returns how many messages changed.
func (r *ReceiptTracker) MarkSeenUpTo(ctx context.Context, chatID domain.ChatID, userID domain.UserID, upToSequence uint64) (int, error) {
	if upToSequence == 0 {
		upToSequence = math.MaxUint64
	}
	var events []event.DomainEvent
	err := r.store.Update(func(tx *repositories.Txn) error {
		events = nil
		chat, err := r.memberChat(tx, chatID, userID)
		if err != nil {
			return err
		}
		last, err := tx.LastSequence(chatID)
		if err != nil {
			return err
		}
		upTo := min(upToSequence, last)
		// Everything at or below the watermark was already acknowledged
		watermark, err := tx.Watermark(chatID, userID)
		if err != nil {
			return err
		}
		if upTo <= watermark {
			return nil
		}
		messages, err := tx.ScanMessages(chatID, watermark+1, upTo)
		if err != nil {
			return err
		}
		events, err = r.markMessages(ctx, tx, chat, userID, messages)
		if err != nil {
			return err
		}
		return tx.SetWatermark(chatID, userID, upTo)
	})
	if err != nil {
		return 0, fmt.Errorf("mark seen up to %d: %w", upToSequence, err)
	}
	r.emitter.Emit(events...)
	return countSeen(events), nil
}

func (r *ReceiptTracker) GetSeenBy(_ context.Context, messageID domain.MessageID) ([]domain.UserID, error) {
	var seenBy []domain.UserID
	err := r.store.View(func(tx *repositories.Txn) error {
		msg, err := tx.GetMessage(messageID)
		if err != nil {
			return err
		}
		seenBy = msg.SeenBy
		return nil
	})
	return seenBy, err
}

func (r *ReceiptTracker) memberChat(tx *repositories.Txn, chatID domain.ChatID, userID domain.UserID) (domain.Chat, error) {
	chat, err := tx.GetChat(chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !chat.HasMember(userID) {
		return domain.Chat{}, fmt.Errorf("%s is not a member of %s: %w", userID, chatID, errors.ErrNotAuthorized)
	}
	return chat, nil
}

// markMessages adds userID to the seen-by set of each message not yet seen,
// then hands the changed ones to the hooks.
func (r *ReceiptTracker) markMessages(ctx context.Context, tx *repositories.Txn, chat domain.Chat,
	userID domain.UserID, messages []domain.Message) ([]event.DomainEvent, error) {
	var (
		changed []domain.Message
		events  []event.DomainEvent
	)
	for _, msg := range messages {
		if msg.IsSeenBy(userID) {
			continue
		}
		msg = msg.WithSeenBy(userID)
		if err := tx.PutMessage(msg); err != nil {
			return nil, err
		}
		changed = append(changed, msg)
		events = append(events, event.MessageSeen{
			ChatID:    msg.ChatID,
			MessageID: msg.ID,
			Sequence:  msg.Sequence,
			UserID:    userID,
			SeenBy:    msg.SeenBy,
			Members:   chat.Members,
		})
	}
	if len(changed) == 0 {
		return nil, nil
	}
	for _, hook := range r.hooks {
		hookEvents, err := hook.OnMessageSeen(ctx, tx, userID, changed)
		if err != nil {
			return nil, err
		}
		events = append(events, hookEvents...)
	}
	return events, nil
}

// countSeen skips the hook events that follow the receipts.
func countSeen(events []event.DomainEvent) int {
	count := 0
	for _, e := range events {
		if e.Type() == event.MessageSeenType {
			count++
		}
	}
	return count
}
