package services

import (
	"testing"

	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/repositories"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestNotificationCounter_OnMessageSent_MentionType(t *testing.T) {
	req := require.New(t)
	f := newFixture(t,
		domain.ChatMember{UserID: "u1", Handle: "ann", DisplayName: "Ann"},
		domain.ChatMember{UserID: "u2", Handle: "bob"},
		domain.ChatMember{UserID: "u3", Handle: "cy"},
	)
	ctx := t.Context()
	chat := f.group(t, "u1", "u2", "u3")

	// When ann mentions bob only
	f.send(t, chat.ID, "u1", "hey @Bob, look")

	// Then bob gets a mention and cy a general notification
	bobs, err := f.counter.ListNotifications(ctx, "u2", "", 10)
	req.NoError(err)
	req.Len(bobs, 1)
	req.Equal(domain.NotificationMention, bobs[0].Type)
	req.Equal("team", bobs[0].Title)
	req.Equal(domain.UserID("u1"), bobs[0].Sender)
	req.Equal("hey @Bob, look", bobs[0].Message)

	cys, err := f.counter.ListNotifications(ctx, "u3", "", 10)
	req.NoError(err)
	req.Len(cys, 1)
	req.Equal(domain.NotificationGeneral, cys[0].Type)

	// And a broadcast mentions everyone
	f.send(t, chat.ID, "u2", "@all standup")
	cys, err = f.counter.ListNotifications(ctx, "u3", "", 10)
	req.NoError(err)
	req.Equal(domain.NotificationMention, cys[0].Type)
}

func TestNotificationCounter_DirectChatTitleIsSender(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.ChatMember{UserID: "alice", DisplayName: "Alice"})
	dm, err := f.membership.CreateDirectChat(t.Context(), "alice", "bob")
	req.NoError(err)

	f.send(t, dm.ID, "alice", "hi")

	notifications, err := f.counter.ListNotifications(t.Context(), "bob", "", 10)
	req.NoError(err)
	req.Len(notifications, 1)
	req.Equal("Alice", notifications[0].Title)
}

func TestNotificationCounter_MarkRead(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	chat := f.group(t, "alice", "bob")
	f.send(t, chat.ID, "alice", "one")
	f.send(t, chat.ID, "alice", "two")
	notifications, err := f.counter.ListNotifications(ctx, "bob", "", 10)
	req.NoError(err)
	req.Len(notifications, 2)

	// Reading twice only decrements once
	req.NoError(f.counter.MarkRead(ctx, "bob", notifications[0].ID))
	req.NoError(f.counter.MarkRead(ctx, "bob", notifications[0].ID))
	req.Equal(int64(1), f.unread(t, "bob"))

	// Another user's notification is not found for alice
	req.ErrorIs(f.counter.MarkRead(ctx, "alice", notifications[1].ID), errors.ErrNotFound)
	f.requireReconciled(t, "alice", "bob")
}

func TestNotificationCounter_ResetUnread(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	chat := f.group(t, "alice", "bob")
	for range 3 {
		f.send(t, chat.ID, "alice", "spam")
	}

	read, err := f.counter.ResetUnread(ctx, "bob")
	req.NoError(err)
	req.Equal(3, read)
	req.Equal(int64(0), f.unread(t, "bob"))

	f.emitter.reset()
	read, err = f.counter.ResetUnread(ctx, "bob")
	req.NoError(err)
	req.Zero(read)
	req.Empty(f.emitter.events)
	f.requireReconciled(t, "bob")
}

func TestNotificationCounter_Notify(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()

	notification, err := f.counter.Notify(ctx, domain.NotifyCommand{
		SendTo: "bob",
		Sender: "alice",
		Type:   domain.NotificationLike,
		Title:  "New like",
		PostID: "post-1",
	})
	req.NoError(err)
	req.Equal("post-1", notification.PostID)
	req.Equal(int64(1), f.unread(t, "bob"))

	_, err = f.counter.Notify(ctx, domain.NotifyCommand{SendTo: "bob", Sender: "alice", Type: "poke", Title: "x"})
	req.ErrorIs(err, errors.ErrInvalidArgument)
}

func TestNotificationCounter_ListNotifications_NewestFirst(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	for _, title := range []string{"first", "second", "third"} {
		_, err := f.counter.Notify(ctx, domain.NotifyCommand{SendTo: "bob", Sender: "alice", Type: domain.NotificationFollow, Title: title})
		req.NoError(err)
	}

	page, err := f.counter.ListNotifications(ctx, "bob", "", 2)
	req.NoError(err)
	req.Equal([]string{"third", "second"}, lo.Map(page, func(n domain.Notification, _ int) string { return n.Title }))

	page, err = f.counter.ListNotifications(ctx, "bob", page[1].ID, 2)
	req.NoError(err)
	req.Equal([]string{"first"}, lo.Map(page, func(n domain.Notification, _ int) string { return n.Title }))
}

func TestNotificationCounter_Reconcile_RepairsDrift(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	chat := f.group(t, "alice", "bob")
	f.send(t, chat.ID, "alice", "one")

	// Given a counter corrupted behind the service's back
	req.NoError(f.store.Update(func(tx *repositories.Txn) error {
		_, err := tx.SetUnread("bob", 7, chat.CreatedAt)
		return err
	}))

	// When checking without repair
	result, err := f.counter.Reconcile(ctx, "bob", false)
	req.NoError(err)
	req.Equal(int64(6), result.Drift())
	req.False(result.Repaired)

	// Then repairing realigns the counter
	f.emitter.reset()
	results, err := f.counter.ReconcileAll(ctx, true)
	req.NoError(err)
	repaired := lo.Filter(results, func(r domain.Reconciliation, _ int) bool { return r.Repaired })
	req.Len(repaired, 1)
	req.Equal(domain.UserID("bob"), repaired[0].UserID)
	req.Equal(int64(1), f.unread(t, "bob"))
	changed := f.emitter.ofType(event.NotificationCountChangedType)
	req.Len(changed, 1)
	req.Equal(event.NotificationCountChanged{UserID: "bob", Count: 1}, changed[0])
}

func TestNotificationCounter_OnMessageSent_MentionAtSentenceEnd(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.ChatMember{UserID: "u2", Handle: "bob"})
	chat := f.group(t, "u1", "u2")

	f.send(t, chat.ID, "u1", "thanks @bob.")

	notifications, err := f.counter.ListNotifications(t.Context(), "u2", "", 10)
	req.NoError(err)
	req.Len(notifications, 1)
	req.Equal(domain.NotificationMention, notifications[0].Type)
}
