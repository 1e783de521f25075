package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/mention"
	"chat-core/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	previewLength         = 80
	attachmentPreview     = "sent an attachment"
	DefaultNotifyPageSize = 50
)

type INotificationCounter interface {
	MarkRead(ctx context.Context, userID domain.UserID, notificationID domain.NotificationID) error
	ResetUnread(ctx context.Context, userID domain.UserID) (int, error)
	UnreadCount(ctx context.Context, userID domain.UserID) (int64, error)
	ListNotifications(ctx context.Context, userID domain.UserID, after domain.NotificationID, limit int) ([]domain.Notification, error)
	Notify(ctx context.Context, cmd domain.NotifyCommand) (domain.Notification, error)
	Reconcile(ctx context.Context, userID domain.UserID, repair bool) (domain.Reconciliation, error)
	ReconcileAll(ctx context.Context, repair bool) ([]domain.Reconciliation, error)
}

// NotificationCounter keeps NotificationStatus.Count equal to the number of
// unread notifications. Every change to a notification and to the counter
// happens in the same transaction.
type NotificationCounter struct {
	store   *repositories.Store
	emitter contract.IEmitter
	log     *slog.Logger
}

func NewNotificationCounter(store *repositories.Store, emitter contract.IEmitter, log *slog.Logger) *NotificationCounter {
	return &NotificationCounter{store: store, emitter: emitter, log: log}
}

// OnMessageSent creates one notification per member other than the sender.
// The type is mention when that member is addressed by handle or broadcast.
func (n *NotificationCounter) OnMessageSent(_ context.Context, tx *repositories.Txn,
	chat domain.Chat, msg domain.Message, roster Roster) ([]event.DomainEvent, error) {
	recipients := chat.Others(msg.SenderID)
	if len(recipients) == 0 {
		return nil, nil
	}
	members := roster.Of(chat.Members)
	mentioned := n.mentioned(members, msg.Content)

	sender := members[msg.SenderID]
	title := sender.Name()
	if chat.IsGroup {
		title = chat.Name
	}
	var events []event.DomainEvent
	for _, userID := range recipients {
		notificationType := domain.NotificationGeneral
		if _, ok := mentioned[userID]; ok {
			notificationType = domain.NotificationMention
		}
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		count, err := tx.CreateNotification(domain.Notification{
			ID:        domain.NotificationID(id.String()),
			Title:     title,
			Message:   preview(sender, msg),
			SendTo:    userID,
			Sender:    msg.SenderID,
			Type:      notificationType,
			ChatID:    chat.ID,
			MessageID: msg.ID,
			CreatedAt: msg.CreatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("notify %s: %w", userID, err)
		}
		events = append(events, event.NotificationCountChanged{UserID: userID, Count: count})
	}
	return events, nil
}

// OnMessageSeen retires the notifications raised by the messages userID just read.
func (n *NotificationCounter) OnMessageSeen(_ context.Context, tx *repositories.Txn,
	userID domain.UserID, messages []domain.Message) ([]event.DomainEvent, error) {
	now := time.Now().UTC()
	retired := 0
	for _, msg := range messages {
		notification, err := tx.LinkedNotification(userID, msg.ID)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		changed, err := tx.ReadNotification(notification, now)
		if err != nil {
			return nil, err
		}
		if changed {
			retired++
		}
	}
	if retired == 0 {
		return nil, nil
	}
	status, err := tx.GetStatus(userID)
	if err != nil {
		return nil, err
	}
	return []event.DomainEvent{event.NotificationCountChanged{UserID: userID, Count: status.Count}}, nil
}

// MarkRead is idempotent: reading a read notification changes nothing.
func (n *NotificationCounter) MarkRead(_ context.Context, userID domain.UserID, notificationID domain.NotificationID) error {
	var changed *event.NotificationCountChanged
	err := n.store.Update(func(tx *repositories.Txn) error {
		changed = nil
		notification, err := tx.GetNotification(userID, notificationID)
		if err != nil {
			return err
		}
		ok, err := tx.ReadNotification(notification, time.Now().UTC())
		if err != nil || !ok {
			return err
		}
		status, err := tx.GetStatus(userID)
		if err != nil {
			return err
		}
		changed = &event.NotificationCountChanged{UserID: userID, Count: status.Count}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if changed != nil {
		n.emitter.Emit(*changed)
	}
	return nil
}

// ResetUnread reads every unread notification of userID and zeroes the counter.
// It returns how many notifications were read.
func (n *NotificationCounter) ResetUnread(_ context.Context, userID domain.UserID) (int, error) {
	var (
		read   int
		before int64
	)
	err := n.store.Update(func(tx *repositories.Txn) error {
		read = 0
		status, err := tx.GetStatus(userID)
		if err != nil {
			return err
		}
		before = status.Count
		ids, err := tx.UnreadIDs(userID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, id := range ids {
			notification, err := tx.GetNotification(userID, id)
			if err != nil {
				return err
			}
			if _, err = tx.ReadNotification(notification, now); err != nil {
				return err
			}
			read++
		}
		if before == 0 && read == 0 {
			return nil
		}
		_, err = tx.SetUnread(userID, 0, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reset unread: %w", err)
	}
	if before > 0 || read > 0 {
		n.emitter.Emit(event.NotificationCountChanged{UserID: userID, Count: 0})
	}
	return read, nil
}

// UnreadCount reads the cached counter, never the notifications.
func (n *NotificationCounter) UnreadCount(_ context.Context, userID domain.UserID) (int64, error) {
	var count int64
	err := n.store.View(func(tx *repositories.Txn) error {
		status, err := tx.GetStatus(userID)
		count = status.Count
		return err
	})
	return count, err
}

func (n *NotificationCounter) ListNotifications(_ context.Context, userID domain.UserID,
	after domain.NotificationID, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotifyPageSize
	}
	var notifications []domain.Notification
	err := n.store.View(func(tx *repositories.Txn) error {
		var err error
		notifications, err = tx.ListNotifications(userID, after, limit)
		return err
	})
	return notifications, err
}

// Notify raises a notification on behalf of a producer outside of messaging.
func (n *NotificationCounter) Notify(_ context.Context, cmd domain.NotifyCommand) (domain.Notification, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.Notification{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Notification{}, err
	}
	notification := domain.Notification{
		ID:        domain.NotificationID(id.String()),
		Title:     cmd.Title,
		Message:   cmd.Message,
		SendTo:    cmd.SendTo,
		Sender:    cmd.Sender,
		Type:      cmd.Type,
		PostID:    cmd.PostID,
		CommentID: cmd.CommentID,
		CreatedAt: time.Now().UTC(),
	}
	var count int64
	err = n.store.Update(func(tx *repositories.Txn) error {
		var err error
		count, err = tx.CreateNotification(notification)
		return err
	})
	if err != nil {
		return domain.Notification{}, fmt.Errorf("notify: %w", err)
	}
	n.emitter.Emit(event.NotificationCountChanged{UserID: cmd.SendTo, Count: count})
	return notification, nil
}

// Reconcile recounts the unread notifications of userID by scan and compares
// the result with the cached counter. With repair the counter is overwritten.
func (n *NotificationCounter) Reconcile(_ context.Context, userID domain.UserID, repair bool) (domain.Reconciliation, error) {
	var result domain.Reconciliation
	err := n.store.Update(func(tx *repositories.Txn) error {
		var err error
		result, err = reconcile(tx, userID, repair)
		return err
	})
	if err != nil {
		return domain.Reconciliation{}, fmt.Errorf("reconcile %s: %w", userID, err)
	}
	if result.Repaired {
		n.log.Warn("Unread counter repaired", "user", userID, "stored", result.Stored, "live", result.Live)
		n.emitter.Emit(event.NotificationCountChanged{UserID: userID, Count: result.Live})
	}
	return result, nil
}

// ReconcileAll runs Reconcile for every user owning a counter.
func (n *NotificationCounter) ReconcileAll(ctx context.Context, repair bool) ([]domain.Reconciliation, error) {
	var users []domain.UserID
	err := n.store.View(func(tx *repositories.Txn) error {
		var err error
		users, err = tx.StatusUsers()
		return err
	})
	if err != nil {
		return nil, err
	}
	results := make([]domain.Reconciliation, 0, len(users))
	for _, userID := range users {
		result, err := n.Reconcile(ctx, userID, repair)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func reconcile(tx *repositories.Txn, userID domain.UserID, repair bool) (domain.Reconciliation, error) {
	status, err := tx.GetStatus(userID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	live, err := tx.CountUnread(userID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	result := domain.Reconciliation{UserID: userID, Stored: status.Count, Live: live}
	if repair && result.Drift() != 0 {
		if _, err = tx.SetUnread(userID, live, time.Now().UTC()); err != nil {
			return domain.Reconciliation{}, err
		}
		result.Repaired = true
	}
	return result, nil
}

func (n *NotificationCounter) mentioned(members map[domain.UserID]domain.ChatMember, content string) map[domain.UserID]struct{} {
	if !strings.ContainsRune(content, mention.Sigil) {
		return nil
	}
	detector, err := mention.NewDetector(lo.Values(members))
	if err != nil {
		n.log.Warn("Mention detection disabled for message", "error", err)
		return nil
	}
	return detector.Mentioned(content)
}

func preview(sender domain.ChatMember, msg domain.Message) string {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return sender.Name() + " " + attachmentPreview
	}
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	return string([]rune(content)[:previewLength]) + "…"
}
