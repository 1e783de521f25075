package httpapi

import (
	"time"

	"chat-core/domain"

	"github.com/samber/lo"
)

type chatView struct {
	ID            domain.ChatID     `json:"id"`
	IsGroup       bool              `json:"isGroup"`
	Name          string            `json:"name,omitempty"`
	ImageURL      string            `json:"imageUrl,omitempty"`
	Members       []domain.UserID   `json:"members"`
	LastMessageID *domain.MessageID `json:"lastMessageId,omitempty"`
	CreatedBy     domain.UserID     `json:"createdBy,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

func toChatView(c domain.Chat) chatView {
	return chatView{
		ID:            c.ID,
		IsGroup:       c.IsGroup,
		Name:          c.Name,
		ImageURL:      c.ImageURL,
		Members:       c.Members,
		LastMessageID: c.LastMessageID,
		CreatedBy:     c.CreatedBy,
		CreatedAt:     c.CreatedAt,
	}
}

type messageView struct {
	ID        domain.MessageID `json:"id"`
	ChatID    domain.ChatID    `json:"chatId"`
	Sequence  uint64           `json:"sequence"`
	SenderID  domain.UserID    `json:"senderId"`
	Content   string           `json:"content,omitempty"`
	FileID    string           `json:"fileId,omitempty"`
	SeenBy    []domain.UserID  `json:"seenBy"`
	CreatedAt time.Time        `json:"createdAt"`
}

func toMessageView(m domain.Message) messageView {
	return messageView{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Sequence:  m.Sequence,
		SenderID:  m.SenderID,
		Content:   m.Content,
		FileID:    m.FileID,
		SeenBy:    m.SeenBy,
		CreatedAt: m.CreatedAt,
	}
}

type messagePage struct {
	Messages   []messageView  `json:"messages"`
	NextCursor *domain.Cursor `json:"nextCursor,omitempty"`
}

type notificationView struct {
	ID        domain.NotificationID   `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message,omitempty"`
	Sender    domain.UserID           `json:"sender"`
	PostID    string                  `json:"postId,omitempty"`
	CommentID string                  `json:"commentId,omitempty"`
	ChatID    domain.ChatID           `json:"chatId,omitempty"`
	MessageID domain.MessageID        `json:"messageId,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
	ReadAt    *time.Time              `json:"readAt,omitempty"`
}

func toNotificationView(n domain.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Sender:    n.Sender,
		PostID:    n.PostID,
		CommentID: n.CommentID,
		ChatID:    n.ChatID,
		MessageID: n.MessageID,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}

type notificationPage struct {
	Notifications []notificationView     `json:"notifications"`
	NextCursor    *domain.NotificationID `json:"nextCursor,omitempty"`
}

func toMessageViews(messages []domain.Message) []messageView {
	return lo.Map(messages, func(m domain.Message, _ int) messageView { return toMessageView(m) })
}

func toChatViews(chats []domain.Chat) []chatView {
	return lo.Map(chats, func(c domain.Chat, _ int) chatView { return toChatView(c) })
}

func toNotificationViews(notifications []domain.Notification) []notificationView {
	return lo.Map(notifications, func(n domain.Notification, _ int) notificationView { return toNotificationView(n) })
}
