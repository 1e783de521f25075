package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/search"
)

// IMessageSearcher is the full-text side of the chat, fed asynchronously.
type IMessageSearcher interface {
	Search(ctx context.Context, chatID domain.ChatID, query search.Query) ([]search.Hit, error)
}

// IChatService is what transports call on behalf of an authenticated user.
type IChatService interface {
	CreateDirectChat(ctx context.Context, userID, otherID domain.UserID) (domain.Chat, error)
	CreateGroupChat(ctx context.Context, cmd domain.CreateGroupChatCommand) (domain.Chat, error)
	GetChat(ctx context.Context, userID domain.UserID, chatID domain.ChatID) (domain.Chat, error)
	ListChats(ctx context.Context, userID domain.UserID) ([]domain.Chat, error)
	ListMembers(ctx context.Context, userID domain.UserID, chatID domain.ChatID) ([]domain.ChatMember, error)
	AddMember(ctx context.Context, chatID domain.ChatID, actorID, newUserID domain.UserID) error
	RemoveMember(ctx context.Context, chatID domain.ChatID, actorID, targetID domain.UserID) error
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	ListMessages(ctx context.Context, userID domain.UserID, cmd domain.ListMessagesCommand) ([]domain.Message, *domain.Cursor, error)
	MarkSeen(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID, userID domain.UserID) error
	GetSeenBy(ctx context.Context, userID domain.UserID, chatID domain.ChatID, messageID domain.MessageID) ([]domain.UserID, error)
	OpenChat(ctx context.Context, chatID domain.ChatID, userID domain.UserID, upToSequence uint64) (int, int, error)
	Search(ctx context.Context, userID domain.UserID, chatID domain.ChatID, input string) ([]domain.Message, error)
	UpdateProfile(ctx context.Context, member domain.ChatMember) error
	Upload(ctx context.Context, owner domain.UserID, filename string, r io.Reader) (string, error)
}

type ChatService struct {
	membership *MembershipManager
	sequencer  *Sequencer
	receipts   *ReceiptTracker
	counter    *NotificationCounter
	presence   contract.IPresence
	uploader   contract.IUploader
	searcher   IMessageSearcher
	log        *slog.Logger
}

func NewChatService(membership *MembershipManager, sequencer *Sequencer, receipts *ReceiptTracker,
	counter *NotificationCounter, presence contract.IPresence, uploader contract.IUploader,
	searcher IMessageSearcher, log *slog.Logger) *ChatService {
	return &ChatService{
		membership: membership,
		sequencer:  sequencer,
		receipts:   receipts,
		counter:    counter,
		presence:   presence,
		uploader:   uploader,
		searcher:   searcher,
		log:        log,
	}
}

func (s *ChatService) CreateDirectChat(ctx context.Context, userID, otherID domain.UserID) (domain.Chat, error) {
	return s.membership.CreateDirectChat(ctx, userID, otherID)
}

func (s *ChatService) CreateGroupChat(ctx context.Context, cmd domain.CreateGroupChatCommand) (domain.Chat, error) {
	return s.membership.CreateGroupChat(ctx, cmd)
}

// GetChat hides chats from non members behind NotAuthorized.
func (s *ChatService) GetChat(ctx context.Context, userID domain.UserID, chatID domain.ChatID) (domain.Chat, error) {
	chat, err := s.membership.GetChat(ctx, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !chat.HasMember(userID) {
		return domain.Chat{}, fmt.Errorf("%s is not a member of %s: %w", userID, chatID, errors.ErrNotAuthorized)
	}
	return chat, nil
}

func (s *ChatService) ListChats(ctx context.Context, userID domain.UserID) ([]domain.Chat, error) {
	return s.membership.ListChats(ctx, userID)
}

func (s *ChatService) ListMembers(ctx context.Context, userID domain.UserID, chatID domain.ChatID) ([]domain.ChatMember, error) {
	chat, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return resolveMembers(ctx, s.presence, chat.Members)
}

func (s *ChatService) AddMember(ctx context.Context, chatID domain.ChatID, actorID, newUserID domain.UserID) error {
	return s.membership.AddMember(ctx, chatID, actorID, newUserID)
}

func (s *ChatService) RemoveMember(ctx context.Context, chatID domain.ChatID, actorID, targetID domain.UserID) error {
	return s.membership.RemoveMember(ctx, chatID, actorID, targetID)
}

// SendMessage turns an upload reference into a durable file id before sending.
func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if cmd.FileID != "" {
		fileID, err := s.uploader.Resolve(ctx, cmd.FileID)
		if err != nil {
			return domain.Message{}, fmt.Errorf("attachment %s: %w", cmd.FileID, err)
		}
		cmd.FileID = fileID
	}
	return s.sequencer.SendMessage(ctx, cmd)
}

func (s *ChatService) ListMessages(ctx context.Context, userID domain.UserID, cmd domain.ListMessagesCommand) ([]domain.Message, *domain.Cursor, error) {
	if _, err := s.GetChat(ctx, userID, cmd.ChatID); err != nil {
		return nil, nil, err
	}
	return s.sequencer.ListMessages(ctx, cmd)
}

func (s *ChatService) MarkSeen(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID, userID domain.UserID) error {
	return s.receipts.MarkSeen(ctx, chatID, messageID, userID)
}

func (s *ChatService) GetSeenBy(ctx context.Context, userID domain.UserID, chatID domain.ChatID, messageID domain.MessageID) ([]domain.UserID, error) {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	msg, err := s.sequencer.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ChatID != chatID {
		return nil, fmt.Errorf("message %s in chat %s: %w", messageID, chatID, errors.ErrNotFound)
	}
	return msg.SeenBy, nil
}

// OpenChat is what a client calls when a chat comes on screen: every message
// up to upToSequence is marked seen and the unread counter is reset.
// Both steps stay idempotent on their own.
func (s *ChatService) OpenChat(ctx context.Context, chatID domain.ChatID, userID domain.UserID, upToSequence uint64) (int, int, error) {
	seen, err := s.receipts.MarkSeenUpTo(ctx, chatID, userID, upToSequence)
	if err != nil {
		return 0, 0, err
	}
	read, err := s.counter.ResetUnread(ctx, userID)
	if err != nil {
		return seen, 0, err
	}
	return seen, read, nil
}

// Search looks up the index then reloads each hit from the store, so the
// returned messages carry their current seen-by set.
func (s *ChatService) Search(ctx context.Context, userID domain.UserID, chatID domain.ChatID, input string) ([]domain.Message, error) {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	query := search.NewQuery(input)
	if query.IsEmpty() {
		return nil, errors.Invalid("empty search query")
	}
	hits, err := s.searcher.Search(ctx, chatID, query)
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(hits))
	for _, hit := range hits {
		msg, err := s.sequencer.GetMessage(ctx, hit.MessageID)
		if errors.Is(err, errors.ErrNotFound) {
			s.log.Debug("Indexed message no longer stored", "message", hit.MessageID)
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *ChatService) UpdateProfile(ctx context.Context, member domain.ChatMember) error {
	if member.UserID == "" {
		return errors.Invalid("profile without user id")
	}
	return s.presence.Upsert(ctx, member)
}

func (s *ChatService) Upload(ctx context.Context, owner domain.UserID, filename string, r io.Reader) (string, error) {
	return s.uploader.Save(ctx, owner, filename, r)
}
