package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultPageSize         = 50
	DefaultMaxPageSize      = 200
	DefaultMaxContentLength = 4096
)

// MessageSentHook runs inside the transaction that persists a message.
// An error aborts the whole send; returned events are emitted after commit.
// roster was resolved before the transaction began.
type MessageSentHook interface {
	OnMessageSent(ctx context.Context, tx *repositories.Txn, chat domain.Chat, msg domain.Message, roster Roster) ([]event.DomainEvent, error)
}

// Roster is the display data of chat members, keyed by user.
type Roster map[domain.UserID]domain.ChatMember

// Of returns the members of userIDs, bare ids for users the roster does not know.
func (r Roster) Of(userIDs []domain.UserID) map[domain.UserID]domain.ChatMember {
	return lo.SliceToMap(userIDs, func(userID domain.UserID) (domain.UserID, domain.ChatMember) {
		if member, ok := r[userID]; ok {
			return userID, member
		}
		return userID, domain.ChatMember{UserID: userID}
	})
}

type ISequencer interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	ListMessages(ctx context.Context, cmd domain.ListMessagesCommand) ([]domain.Message, *domain.Cursor, error)
	GetMessage(ctx context.Context, messageID domain.MessageID) (domain.Message, error)
}

type SequencerConfig struct {
	DefaultPageSize  int
	MaxPageSize      int
	MaxContentLength int
}

// Sequencer assigns each message a gapless per-chat sequence number and
// persists it together with the chat's last message pointer.
type Sequencer struct {
	store            *repositories.Store
	emitter          contract.IEmitter
	presence         contract.IPresence
	hooks            []MessageSentHook
	log              *slog.Logger
	defaultPageSize  int
	maxPageSize      int
	maxContentLength int
}

func NewSequencer(store *repositories.Store, emitter contract.IEmitter, presence contract.IPresence,
	log *slog.Logger, cfg SequencerConfig, hooks ...MessageSentHook) *Sequencer {
	s := &Sequencer{
		store:            store,
		emitter:          emitter,
		presence:         presence,
		hooks:            hooks,
		log:              log,
		defaultPageSize:  cfg.DefaultPageSize,
		maxPageSize:      cfg.MaxPageSize,
		maxContentLength: cfg.MaxContentLength,
	}
	if s.defaultPageSize <= 0 {
		s.defaultPageSize = DefaultPageSize
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = DefaultMaxPageSize
	}
	if s.maxContentLength <= 0 {
		s.maxContentLength = DefaultMaxContentLength
	}
	return s
}

// SendMessage persists the message, bumps the chat's last message and runs
// every hook in one transaction. Nothing is emitted unless it commits.
func (s *Sequencer) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	// 1. Validate input before touching storage
	if err := validateCommand(cmd); err != nil {
		return domain.Message{}, err
	}
	if !domain.HasBody(cmd.Content, cmd.FileID) {
		return domain.Message{}, errors.Invalid("message needs content or an attachment")
	}
	if utf8.RuneCountInString(cmd.Content) > s.maxContentLength {
		return domain.Message{}, errors.Invalid("content longer than %d characters", s.maxContentLength)
	}

	// 2. Presence may live behind the network, resolve it before the transaction
	roster, err := s.roster(ctx, cmd)
	if err != nil {
		return domain.Message{}, err
	}

	id := domain.MessageID(uuid.NewString())
	var (
		msg    domain.Message
		chat   domain.Chat
		events []event.DomainEvent
	)
	// 3. Allocate, persist and run hooks atomically; replays start from scratch
	err = s.store.Update(func(tx *repositories.Txn) error {
		events = nil
		var err error
		chat, err = tx.GetChat(cmd.ChatID)
		if err != nil {
			return err
		}
		if !chat.HasMember(cmd.SenderID) {
			return fmt.Errorf("%s is not a member of %s: %w", cmd.SenderID, cmd.ChatID, errors.ErrNotAuthorized)
		}
		seq, err := tx.NextSequence(cmd.ChatID)
		if err != nil {
			return err
		}
		msg = domain.Message{
			ID:        id,
			ChatID:    cmd.ChatID,
			Sequence:  seq,
			SenderID:  cmd.SenderID,
			Content:   cmd.Content,
			FileID:    cmd.FileID,
			SeenBy:    []domain.UserID{cmd.SenderID},
			CreatedAt: time.Now().UTC(),
		}
		if err = tx.PutMessage(msg); err != nil {
			return err
		}
		previous := chat
		chat.LastMessageID = &msg.ID
		if err = tx.PutChat(chat, &previous); err != nil {
			return err
		}
		for _, hook := range s.hooks {
			hookEvents, err := hook.OnMessageSent(ctx, tx, chat, msg, roster)
			if err != nil {
				return err
			}
			events = append(events, hookEvents...)
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}

	// 4. Fan out only what committed
	s.emitter.Emit(append([]event.DomainEvent{event.NewMessageSent(chat, msg)}, events...)...)
	s.log.Debug("Message sent", "chat", msg.ChatID, "sequence", msg.Sequence)
	return msg, nil
}

// roster snapshots the chat members and resolves their display data. Members
// joining before the commit show up as bare ids; a presence failure degrades
// every member to its id.
func (s *Sequencer) roster(ctx context.Context, cmd domain.SendMessageCommand) (Roster, error) {
	var chat domain.Chat
	err := s.store.View(func(tx *repositories.Txn) error {
		var err error
		chat, err = tx.GetChat(cmd.ChatID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(cmd.SenderID) {
		return nil, fmt.Errorf("%s is not a member of %s: %w", cmd.SenderID, cmd.ChatID, errors.ErrNotAuthorized)
	}
	resolved, err := s.presence.Resolve(ctx, chat.Members)
	if err != nil {
		s.log.Warn("Presence unavailable, falling back to user ids", "chat", cmd.ChatID, "error", err)
		return Roster{}, nil
	}
	return resolved, nil
}

// ListMessages pages from newest to oldest. The returned cursor is nil once
// the oldest message has been delivered.
func (s *Sequencer) ListMessages(_ context.Context, cmd domain.ListMessagesCommand) ([]domain.Message, *domain.Cursor, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, nil, err
	}
	before, _, err := cmd.Cursor.Sequence()
	if err != nil {
		return nil, nil, err
	}
	limit := cmd.Limit
	if limit == 0 {
		limit = s.defaultPageSize
	}
	limit = min(limit, s.maxPageSize)

	var messages []domain.Message
	err = s.store.View(func(tx *repositories.Txn) error {
		if _, err := tx.GetChat(cmd.ChatID); err != nil {
			return err
		}
		messages, err = tx.ListMessages(cmd.ChatID, before, limit)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if len(messages) < limit || messages[len(messages)-1].Sequence <= 1 {
		return messages, nil, nil
	}
	next := domain.NewCursor(messages[len(messages)-1].Sequence)
	return messages, &next, nil
}

func (s *Sequencer) GetMessage(_ context.Context, messageID domain.MessageID) (domain.Message, error) {
	var msg domain.Message
	err := s.store.View(func(tx *repositories.Txn) error {
		var err error
		msg, err = tx.GetMessage(messageID)
		return err
	})
	return msg, err
}
