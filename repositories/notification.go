package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/dgraph-io/badger/v4"
)

// Key layout
//
//	notif:{userID}:{notificationID}  -> notificationRecord (ids are UUIDv7, so key order is creation order)
//	unread:{userID}:{notificationID} -> (empty) present while ReadAt is nil
//	nlink:{userID}:{messageID}       -> notificationID
//	status:{userID}                  -> statusRecord
func notificationPrefix(userID domain.UserID) string { return "notif:" + string(userID) + ":" }

func notificationKey(userID domain.UserID, id domain.NotificationID) string {
	return notificationPrefix(userID) + string(id)
}

func unreadPrefix(userID domain.UserID) string { return "unread:" + string(userID) + ":" }

func unreadKey(userID domain.UserID, id domain.NotificationID) string {
	return unreadPrefix(userID) + string(id)
}

const linkPrefix = "nlink:"

func linkKey(userID domain.UserID, messageID domain.MessageID) string {
	return linkPrefix + string(userID) + ":" + string(messageID)
}

const statusPrefix = "status:"

func statusKey(userID domain.UserID) string { return statusPrefix + string(userID) }

type notificationRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	SendTo    string `json:"sendTo"`
	Sender    string `json:"sender"`
	Type      string `json:"type"`
	PostID    string `json:"postId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	ReadAt    int64  `json:"readAt,omitempty"`
}

type statusRecord struct {
	Count     int64 `json:"count"`
	UpdatedAt int64 `json:"updatedAt"`
}

// CreateNotification stores an unread notification and increments the
// recipient's counter in the same transaction. It returns the new count.
func (t *Txn) CreateNotification(n domain.Notification) (int64, error) {
	if !n.IsUnread() {
		return 0, fmt.Errorf("%w: new notification already read", errors.ErrInvalidArgument)
	}
	if err := t.putJSON(notificationKey(n.SendTo, n.ID), fromNotification(n)); err != nil {
		return 0, err
	}
	if err := t.txn.Set([]byte(unreadKey(n.SendTo, n.ID)), nil); err != nil {
		return 0, err
	}
	if n.MessageID != "" {
		if err := t.txn.Set([]byte(linkKey(n.SendTo, n.MessageID)), []byte(n.ID)); err != nil {
			return 0, err
		}
	}
	return t.AddUnread(n.SendTo, 1, n.CreatedAt)
}

func (t *Txn) GetNotification(userID domain.UserID, id domain.NotificationID) (domain.Notification, error) {
	var rec notificationRecord
	if err := t.getJSON(notificationKey(userID, id), &rec); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return domain.Notification{}, fmt.Errorf("notification %s: %w", id, errors.ErrNotFound)
		}
		return domain.Notification{}, err
	}
	return toNotification(rec), nil
}

// ReadNotification sets ReadAt and decrements the counter when the notification
// was unread. It reports whether anything changed.
func (t *Txn) ReadNotification(n domain.Notification, at time.Time) (bool, error) {
	if !n.IsUnread() {
		return false, nil
	}
	n.ReadAt = &at
	if err := t.putJSON(notificationKey(n.SendTo, n.ID), fromNotification(n)); err != nil {
		return false, err
	}
	if err := t.delete(unreadKey(n.SendTo, n.ID)); err != nil {
		return false, err
	}
	if _, err := t.AddUnread(n.SendTo, -1, at); err != nil {
		return false, err
	}
	return true, nil
}

// LinkedNotification returns the notification created for userID by messageID.
func (t *Txn) LinkedNotification(userID domain.UserID, messageID domain.MessageID) (domain.Notification, error) {
	raw, err := t.getRaw(linkKey(userID, messageID))
	if err != nil {
		return domain.Notification{}, err
	}
	return t.GetNotification(userID, domain.NotificationID(raw))
}

func (t *Txn) UnreadIDs(userID domain.UserID) ([]domain.NotificationID, error) {
	suffixes, err := t.scanKeys(unreadPrefix(userID), false)
	if err != nil {
		return nil, err
	}
	ids := make([]domain.NotificationID, 0, len(suffixes))
	for _, s := range suffixes {
		ids = append(ids, domain.NotificationID(s))
	}
	return ids, nil
}

// CountUnread counts unread notifications by scanning the unread index.
// Reconciliation only, the hot path reads the status record.
func (t *Txn) CountUnread(userID domain.UserID) (int64, error) {
	ids, err := t.UnreadIDs(userID)
	return int64(len(ids)), err
}

// ListNotifications pages newest first; after is the last id of the previous page.
func (t *Txn) ListNotifications(userID domain.UserID, after domain.NotificationID, limit int) ([]domain.Notification, error) {
	prefix := []byte(notificationPrefix(userID))
	seekKey := append([]byte(notificationPrefix(userID)), 0xFF)
	if after != "" {
		seekKey = []byte(notificationKey(userID, after))
	}
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	it := t.txn.NewIterator(options)
	defer it.Close()

	it.Seek(seekKey)
	if after != "" && it.ValidForPrefix(prefix) && string(it.Item().Key()) == notificationKey(userID, after) {
		it.Next()
	}
	var notifications []domain.Notification
	for ; it.ValidForPrefix(prefix) && len(notifications) < limit; it.Next() {
		var rec notificationRecord
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, toNotification(rec))
	}
	return notifications, nil
}

func (t *Txn) GetStatus(userID domain.UserID) (domain.NotificationStatus, error) {
	var rec statusRecord
	if err := t.getJSON(statusKey(userID), &rec); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return domain.NotificationStatus{UserID: userID}, nil
		}
		return domain.NotificationStatus{}, err
	}
	return domain.NotificationStatus{UserID: userID, Count: rec.Count, UpdatedAt: fromUnix(rec.UpdatedAt)}, nil
}

// AddUnread applies delta to the user's counter, floored at zero, and returns
// the new value. The status record is created lazily on the first event.
func (t *Txn) AddUnread(userID domain.UserID, delta int64, at time.Time) (int64, error) {
	status, err := t.GetStatus(userID)
	if err != nil {
		return 0, err
	}
	return t.SetUnread(userID, max(status.Count+delta, 0), at)
}

func (t *Txn) SetUnread(userID domain.UserID, count int64, at time.Time) (int64, error) {
	return count, t.putJSON(statusKey(userID), statusRecord{Count: count, UpdatedAt: toUnix(at)})
}

// StatusUsers lists every user owning a status record.
func (t *Txn) StatusUsers() ([]domain.UserID, error) {
	suffixes, err := t.scanKeys(statusPrefix, false)
	if err != nil {
		return nil, err
	}
	users := make([]domain.UserID, 0, len(suffixes))
	for _, s := range suffixes {
		users = append(users, domain.UserID(s))
	}
	return users, nil
}

func fromNotification(n domain.Notification) notificationRecord {
	rec := notificationRecord{
		ID:        string(n.ID),
		Title:     n.Title,
		Message:   n.Message,
		SendTo:    string(n.SendTo),
		Sender:    string(n.Sender),
		Type:      string(n.Type),
		PostID:    n.PostID,
		CommentID: n.CommentID,
		ChatID:    string(n.ChatID),
		MessageID: string(n.MessageID),
		CreatedAt: toUnix(n.CreatedAt),
	}
	if n.ReadAt != nil {
		rec.ReadAt = toUnix(*n.ReadAt)
	}
	return rec
}

func toNotification(rec notificationRecord) domain.Notification {
	n := domain.Notification{
		ID:        domain.NotificationID(rec.ID),
		Title:     rec.Title,
		Message:   rec.Message,
		SendTo:    domain.UserID(rec.SendTo),
		Sender:    domain.UserID(rec.Sender),
		Type:      domain.NotificationType(rec.Type),
		PostID:    rec.PostID,
		CommentID: rec.CommentID,
		ChatID:    domain.ChatID(rec.ChatID),
		MessageID: domain.MessageID(rec.MessageID),
		CreatedAt: fromUnix(rec.CreatedAt),
	}
	if rec.ReadAt != 0 {
		readAt := fromUnix(rec.ReadAt)
		n.ReadAt = &readAt
	}
	return n
}
