package services

import (
	"testing"

	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"

	"github.com/stretchr/testify/require"
)

func TestReceiptTracker_Scenario_GroupHello(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()

	// Given u1 said hello to u2 and u3
	chat := f.group(t, "u1", "u2", "u3")
	m1 := f.send(t, chat.ID, "u1", "hello")
	req.Equal(int64(1), f.unread(t, "u2"))

	// When u2 catches up to m1
	seen, err := f.receipts.MarkSeenUpTo(ctx, chat.ID, "u2", m1.Sequence)

	// Then m1 is seen by u1 and u2 and u2 has nothing unread
	req.NoError(err)
	req.Equal(1, seen)
	seenBy, err := f.receipts.GetSeenBy(ctx, m1.ID)
	req.NoError(err)
	req.ElementsMatch([]domain.UserID{"u1", "u2"}, seenBy)
	req.Equal(int64(0), f.unread(t, "u2"))
	req.Equal(int64(1), f.unread(t, "u3"))
	f.requireReconciled(t, "u1", "u2", "u3")
}

func TestReceiptTracker_MarkSeen_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	chat := f.group(t, "alice", "bob")
	msg := f.send(t, chat.ID, "alice", "ping")
	f.emitter.reset()

	req.NoError(f.receipts.MarkSeen(ctx, chat.ID, msg.ID, "bob"))
	once, err := f.receipts.GetSeenBy(ctx, msg.ID)
	req.NoError(err)

	req.NoError(f.receipts.MarkSeen(ctx, chat.ID, msg.ID, "bob"))
	twice, err := f.receipts.GetSeenBy(ctx, msg.ID)
	req.NoError(err)

	req.Equal(once, twice)
	req.Len(f.emitter.ofType(event.MessageSeenType), 1)
	req.Len(f.emitter.ofType(event.NotificationCountChangedType), 1)
	req.Equal(int64(0), f.unread(t, "bob"))
}

func TestReceiptTracker_MarkSeen_Errors(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	chat := f.group(t, "alice", "bob")
	other := f.group(t, "alice", "carol")
	msg := f.send(t, other.ID, "alice", "elsewhere")

	req.ErrorIs(f.receipts.MarkSeen(ctx, chat.ID, msg.ID, "mallory"), errors.ErrNotAuthorized)
	req.ErrorIs(f.receipts.MarkSeen(ctx, chat.ID, msg.ID, "bob"), errors.ErrNotFound)
	req.ErrorIs(f.receipts.MarkSeen(ctx, chat.ID, "missing", "bob"), errors.ErrNotFound)
	_, err := f.receipts.MarkSeenUpTo(ctx, chat.ID, "mallory", 1)
	req.ErrorIs(err, errors.ErrNotAuthorized)
}

func TestReceiptTracker_MarkSeenUpTo_Watermark(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	chat := f.group(t, "alice", "bob")
	var messages []domain.Message
	for range 4 {
		messages = append(messages, f.send(t, chat.ID, "alice", "news"))
	}

	// Out of order acknowledgement is fine
	req.NoError(f.receipts.MarkSeen(ctx, chat.ID, messages[2].ID, "bob"))

	// The bulk form skips what bob already saw
	seen, err := f.receipts.MarkSeenUpTo(ctx, chat.ID, "bob", 3)
	req.NoError(err)
	req.Equal(2, seen)

	// Repeating is a no-op
	seen, err = f.receipts.MarkSeenUpTo(ctx, chat.ID, "bob", 3)
	req.NoError(err)
	req.Zero(seen)

	// Past the last sequence clamps to the last message
	seen, err = f.receipts.MarkSeenUpTo(ctx, chat.ID, "bob", 100)
	req.NoError(err)
	req.Equal(1, seen)

	for _, msg := range messages {
		seenBy, err := f.receipts.GetSeenBy(ctx, msg.ID)
		req.NoError(err)
		req.ElementsMatch([]domain.UserID{"alice", "bob"}, seenBy)
	}
	req.Equal(int64(0), f.unread(t, "bob"))
	f.requireReconciled(t, "alice", "bob")
}

func TestReceiptTracker_MarkSeenUpTo_ZeroMeansEverything(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	chat := f.group(t, "alice", "bob")
	f.send(t, chat.ID, "alice", "one")
	f.send(t, chat.ID, "alice", "two")

	seen, err := f.receipts.MarkSeenUpTo(t.Context(), chat.ID, "bob", 0)

	req.NoError(err)
	req.Equal(2, seen)
}
