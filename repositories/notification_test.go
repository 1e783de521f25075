package repositories

import (
	"testing"
	"time"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newNotification(to domain.UserID, messageID domain.MessageID) domain.Notification {
	return domain.Notification{
		ID:        domain.NotificationID(uuid.Must(uuid.NewV7()).String()),
		Title:     "team",
		Message:   "hello",
		SendTo:    to,
		Sender:    "alice",
		Type:      domain.NotificationGeneral,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	}
}

func Test_Notification_Counter_Follows_Unread_Set(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	first := newNotification("bob", "m1")
	second := newNotification("bob", "m2")

	req.NoError(store.Update(func(tx *Txn) error {
		for _, n := range []domain.Notification{first, second} {
			if _, err := tx.CreateNotification(n); err != nil {
				return err
			}
		}
		return nil
	}))

	// When one is read twice
	for i := 0; i < 2; i++ {
		req.NoError(store.Update(func(tx *Txn) error {
			n, err := tx.GetNotification("bob", first.ID)
			if err != nil {
				return err
			}
			_, err = tx.ReadNotification(n, time.Now().UTC())
			return err
		}))
	}

	// Then the stored count matches the live unread count
	req.NoError(store.View(func(tx *Txn) error {
		status, err := tx.GetStatus("bob")
		req.NoError(err)
		live, err := tx.CountUnread("bob")
		req.NoError(err)
		req.Equal(int64(1), status.Count)
		req.Equal(live, status.Count)

		linked, err := tx.LinkedNotification("bob", "m2")
		req.NoError(err)
		req.Equal(second.ID, linked.ID)
		return nil
	}))
}

func Test_AddUnread_Is_Floored_At_Zero(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	var count int64
	req.NoError(store.Update(func(tx *Txn) error {
		var err error
		count, err = tx.AddUnread("carol", -3, time.Now())
		return err
	}))
	req.Zero(count)
}

func Test_ListNotifications_Newest_First(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	var ids []domain.NotificationID
	for i := 0; i < 5; i++ {
		n := newNotification("bob", "")
		ids = append(ids, n.ID)
		req.NoError(store.Update(func(tx *Txn) error {
			_, err := tx.CreateNotification(n)
			return err
		}))
		time.Sleep(2 * time.Millisecond)
	}

	req.NoError(store.View(func(tx *Txn) error {
		page1, err := tx.ListNotifications("bob", "", 3)
		req.NoError(err)
		req.Len(page1, 3)
		req.Equal(ids[4], page1[0].ID)

		page2, err := tx.ListNotifications("bob", page1[2].ID, 3)
		req.NoError(err)
		req.Len(page2, 2)
		req.Equal(ids[1], page2[0].ID)
		req.Equal(ids[0], page2[1].ID)
		return nil
	}))
}

func Test_GetNotification_Of_Other_User_Is_Not_Found(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	n := newNotification("bob", "")
	req.NoError(store.Update(func(tx *Txn) error {
		_, err := tx.CreateNotification(n)
		return err
	}))
	req.NoError(store.View(func(tx *Txn) error {
		_, err := tx.GetNotification("mallory", n.ID)
		req.ErrorIs(err, errors.ErrNotFound)
		return nil
	}))
}
