// Package event defines the domain events emitted after a transaction commits.
// Each event carries its own audience so the fan-out gateway stays stateless.
package event

import (
	"time"

	"chat-core/domain"
)

type Type string

const (
	MessageSentType              Type = "message_sent"
	MessageSeenType              Type = "message_seen"
	NotificationCountChangedType Type = "notification_count_changed"
	MemberAddedType              Type = "member_added"
	MemberRemovedType            Type = "member_removed"
	ChatDeletedType              Type = "chat_deleted"
)

type DomainEvent interface {
	Type() Type
	Audience() []domain.UserID
}

type MessageSent struct {
	ChatID    domain.ChatID    `json:"chatId"`
	MessageID domain.MessageID `json:"messageId"`
	Sequence  uint64           `json:"sequence"`
	SenderID  domain.UserID    `json:"senderId"`
	Content   string           `json:"content,omitempty"`
	FileID    string           `json:"fileId,omitempty"`
	At        time.Time        `json:"at"`
	Members   []domain.UserID  `json:"members"`
}

func (MessageSent) Type() Type                   { return MessageSentType }
func (m MessageSent) Audience() []domain.UserID { return m.Members }

func NewMessageSent(chat domain.Chat, msg domain.Message) MessageSent {
	return MessageSent{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Sequence:  msg.Sequence,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		FileID:    msg.FileID,
		At:        msg.CreatedAt,
		Members:   chat.Members,
	}
}

type MessageSeen struct {
	ChatID    domain.ChatID    `json:"chatId"`
	MessageID domain.MessageID `json:"messageId"`
	Sequence  uint64           `json:"sequence"`
	UserID    domain.UserID    `json:"userId"`
	SeenBy    []domain.UserID  `json:"seenBy"`
	Members   []domain.UserID  `json:"members"`
}

func (MessageSeen) Type() Type                   { return MessageSeenType }
func (m MessageSeen) Audience() []domain.UserID { return m.Members }

type NotificationCountChanged struct {
	UserID domain.UserID `json:"userId"`
	Count  int64         `json:"count"`
}

func (NotificationCountChanged) Type() Type { return NotificationCountChangedType }
func (n NotificationCountChanged) Audience() []domain.UserID {
	return []domain.UserID{n.UserID}
}

type MemberAdded struct {
	ChatID  domain.ChatID   `json:"chatId"`
	ActorID domain.UserID   `json:"actorId"`
	UserID  domain.UserID   `json:"userId"`
	Members []domain.UserID `json:"members"`
}

func (MemberAdded) Type() Type                   { return MemberAddedType }
func (m MemberAdded) Audience() []domain.UserID { return m.Members }

// MemberRemoved is also delivered to the removed user, who is no longer in Members.
type MemberRemoved struct {
	ChatID  domain.ChatID   `json:"chatId"`
	ActorID domain.UserID   `json:"actorId"`
	UserID  domain.UserID   `json:"userId"`
	Members []domain.UserID `json:"members"`
}

func (MemberRemoved) Type() Type { return MemberRemovedType }
func (m MemberRemoved) Audience() []domain.UserID {
	return append([]domain.UserID{m.UserID}, m.Members...)
}

type ChatDeleted struct {
	ChatID domain.ChatID `json:"chatId"`
	UserID domain.UserID `json:"userId"`
}

func (ChatDeleted) Type() Type                   { return ChatDeletedType }
func (c ChatDeleted) Audience() []domain.UserID { return []domain.UserID{c.UserID} }
