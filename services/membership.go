package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMembershipManager interface {
	CreateDirectChat(ctx context.Context, userA, userB domain.UserID) (domain.Chat, error)
	CreateGroupChat(ctx context.Context, cmd domain.CreateGroupChatCommand) (domain.Chat, error)
	AddMember(ctx context.Context, chatID domain.ChatID, actorID, newUserID domain.UserID) error
	RemoveMember(ctx context.Context, chatID domain.ChatID, actorID, targetID domain.UserID) error
	IsMember(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error)
	GetChat(ctx context.Context, chatID domain.ChatID) (domain.Chat, error)
	ListChats(ctx context.Context, userID domain.UserID) ([]domain.Chat, error)
	ListMembers(ctx context.Context, chatID domain.ChatID) ([]domain.ChatMember, error)
}

// MembershipManager owns chat creation and membership changes.
// Chat records are only ever written through it.
type MembershipManager struct {
	store    *repositories.Store
	presence contract.IPresence
	emitter  contract.IEmitter
	log      *slog.Logger
}

func NewMembershipManager(store *repositories.Store, presence contract.IPresence,
	emitter contract.IEmitter, log *slog.Logger) *MembershipManager {
	return &MembershipManager{store: store, presence: presence, emitter: emitter, log: log}
}

// CreateDirectChat is a lookup-or-create keyed on the unordered pair: asking
// twice, in either order, returns the same chat.
func (m *MembershipManager) CreateDirectChat(_ context.Context, userA, userB domain.UserID) (domain.Chat, error) {
	if err := validateCommand(domain.CreateDirectChatCommand{UserA: userA, UserB: userB}); err != nil {
		return domain.Chat{}, err
	}
	candidate := domain.Chat{
		ID:        domain.ChatID(uuid.NewString()),
		Members:   []domain.UserID{userA, userB},
		CreatedBy: userA,
		CreatedAt: time.Now().UTC(),
	}
	var chat domain.Chat
	err := m.store.Update(func(tx *repositories.Txn) error {
		var err error
		chat, err = tx.CreateDirectChat(candidate)
		if errors.Is(err, errors.ErrAlreadyExists) {
			m.log.Debug("Direct chat already exists", "chat", chat.ID, "userA", userA, "userB", userB)
			return nil
		}
		return err
	})
	if err != nil {
		return domain.Chat{}, fmt.Errorf("create direct chat: %w", err)
	}
	return chat, nil
}

func (m *MembershipManager) CreateGroupChat(_ context.Context, cmd domain.CreateGroupChatCommand) (domain.Chat, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if err := validateCommand(cmd); err != nil {
		return domain.Chat{}, err
	}
	if !slices.Contains(cmd.Members, cmd.Creator) {
		return domain.Chat{}, errors.Invalid("creator %s must be part of the initial members", cmd.Creator)
	}
	chat := domain.Chat{
		ID:        domain.ChatID(uuid.NewString()),
		IsGroup:   true,
		Name:      cmd.Name,
		ImageURL:  cmd.ImageURL,
		Members:   lo.Uniq(cmd.Members),
		CreatedBy: cmd.Creator,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Update(func(tx *repositories.Txn) error {
		return tx.PutChat(chat, nil)
	}); err != nil {
		return domain.Chat{}, fmt.Errorf("create group chat: %w", err)
	}
	m.log.Debug("Group chat created", "chat", chat.ID, "members", len(chat.Members))
	return chat, nil
}

// AddMember is a no-op when newUserID already belongs to the group.
func (m *MembershipManager) AddMember(_ context.Context, chatID domain.ChatID, actorID, newUserID domain.UserID) error {
	if newUserID == "" {
		return errors.Invalid("new member id is empty")
	}
	var added *event.MemberAdded
	err := m.store.Update(func(tx *repositories.Txn) error {
		added = nil
		chat, err := tx.GetChat(chatID)
		if err != nil {
			return err
		}
		if !chat.IsGroup {
			return fmt.Errorf("chat %s: %w", chatID, errors.ErrNotGroupChat)
		}
		if !chat.HasMember(actorID) {
			return fmt.Errorf("%s is not a member of %s: %w", actorID, chatID, errors.ErrNotAuthorized)
		}
		if chat.HasMember(newUserID) {
			return nil
		}
		updated := chat.WithMember(newUserID)
		if err = tx.PutChat(updated, &chat); err != nil {
			return err
		}
		added = &event.MemberAdded{ChatID: chatID, ActorID: actorID, UserID: newUserID, Members: updated.Members}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if added == nil {
		m.log.Debug("Already a member, nothing to add", "chat", chatID, "user", newUserID)
		return nil
	}
	m.emitter.Emit(*added)
	return nil
}

// RemoveMember lets any member leave and lets the creator remove others.
// Removing a user who never belonged to the chat is a no-op; removing the last
// member deletes the chat.
func (m *MembershipManager) RemoveMember(_ context.Context, chatID domain.ChatID, actorID, targetID domain.UserID) error {
	var (
		removed *event.MemberRemoved
		deleted bool
	)
	err := m.store.Update(func(tx *repositories.Txn) error {
		removed, deleted = nil, false
		chat, err := tx.GetChat(chatID)
		if err != nil {
			return err
		}
		if !chat.IsGroup {
			return fmt.Errorf("chat %s: %w", chatID, errors.ErrNotGroupChat)
		}
		if !chat.HasMember(actorID) {
			return fmt.Errorf("%s is not a member of %s: %w", actorID, chatID, errors.ErrNotAuthorized)
		}
		if actorID != targetID && actorID != chat.CreatedBy {
			return fmt.Errorf("only the creator of %s can remove %s: %w", chatID, targetID, errors.ErrNotAuthorized)
		}
		if !chat.HasMember(targetID) {
			return nil
		}
		updated := chat.WithoutMember(targetID)
		removed = &event.MemberRemoved{ChatID: chatID, ActorID: actorID, UserID: targetID, Members: updated.Members}
		if len(updated.Members) == 0 {
			deleted = true
			return tx.DeleteChat(chat)
		}
		return tx.PutChat(updated, &chat)
	})
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if removed == nil {
		m.log.Debug("Target is not a member, nothing to remove", "chat", chatID, "target", targetID)
		return nil
	}
	if !deleted {
		m.emitter.Emit(*removed)
		return nil
	}
	m.log.Info("Last member left, chat deleted", "chat", chatID)
	if err = m.store.PurgeChat(chatID); err != nil {
		// The chat record is gone, so leftovers are unreachable
		m.log.Error("Failed to purge messages of deleted chat", "chat", chatID, "error", err)
	}
	m.emitter.Emit(event.ChatDeleted{ChatID: chatID, UserID: targetID})
	return nil
}

// IsMember is false for unknown chats.
func (m *MembershipManager) IsMember(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error) {
	chat, err := m.GetChat(ctx, chatID)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return chat.HasMember(userID), nil
}

func (m *MembershipManager) GetChat(_ context.Context, chatID domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := m.store.View(func(tx *repositories.Txn) error {
		var err error
		chat, err = tx.GetChat(chatID)
		return err
	})
	return chat, err
}

// ListChats returns the chats of userID, newest first.
func (m *MembershipManager) ListChats(_ context.Context, userID domain.UserID) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := m.store.View(func(tx *repositories.Txn) error {
		ids, err := tx.ListChatIDs(userID)
		if err != nil {
			return err
		}
		chats = make([]domain.Chat, 0, len(ids))
		for _, id := range ids {
			chat, err := tx.GetChat(id)
			if err != nil {
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(chats, func(a, b domain.Chat) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return chats, nil
}

// ListMembers projects the members of a chat through the presence collaborator.
func (m *MembershipManager) ListMembers(ctx context.Context, chatID domain.ChatID) ([]domain.ChatMember, error) {
	chat, err := m.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return resolveMembers(ctx, m.presence, chat.Members)
}

// resolveMembers keeps membership order and falls back to the bare user id for
// users presence does not know.
func resolveMembers(ctx context.Context, presence contract.IPresence, userIDs []domain.UserID) ([]domain.ChatMember, error) {
	resolved, err := presence.Resolve(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve members: %w", err)
	}
	return lo.Map(userIDs, func(userID domain.UserID, _ int) domain.ChatMember {
		if member, ok := resolved[userID]; ok {
			return member
		}
		return domain.ChatMember{UserID: userID}
	}), nil
}
