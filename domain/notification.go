package domain

import (
	"fmt"
	"time"
)

type NotificationID string

// NotificationType is a closed set; new kinds are added here, never passed as free text.
type NotificationType string

const (
	NotificationMention NotificationType = "mention"
	NotificationComment NotificationType = "comment"
	NotificationLike    NotificationType = "like"
	NotificationFollow  NotificationType = "follow"
	NotificationGeneral NotificationType = "general"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationMention: {},
	NotificationComment: {},
	NotificationLike:    {},
	NotificationFollow:  {},
	NotificationGeneral: {},
}

func ParseNotificationType(s string) (NotificationType, error) {
	t := NotificationType(s)
	if _, ok := notificationTypes[t]; !ok {
		return "", fmt.Errorf("unknown notification type %q", s)
	}
	return t, nil
}

type Notification struct {
	ID        NotificationID
	Title     string
	Message   string
	SendTo    UserID
	Sender    UserID
	Type      NotificationType
	PostID    string
	CommentID string
	ChatID    ChatID
	MessageID MessageID
	CreatedAt time.Time
	ReadAt    *time.Time
}

func (n Notification) IsUnread() bool {
	return n.ReadAt == nil
}

// NotificationStatus caches the unread count of one user.
// Count always equals the number of that user's notifications with ReadAt == nil.
type NotificationStatus struct {
	UserID    UserID
	Count     int64
	UpdatedAt time.Time
}

// Reconciliation compares the cached counter with the live unread count.
type Reconciliation struct {
	UserID   UserID
	Stored   int64
	Live     int64
	Repaired bool
}

func (r Reconciliation) Drift() int64 {
	return r.Stored - r.Live
}
