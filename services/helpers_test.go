package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/mocks"
	"chat-core/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recordingEmitter keeps every emitted event for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recordingEmitter) Emit(events ...event.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recordingEmitter) ofType(t event.Type) []event.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.events, func(e event.DomainEvent, _ int) bool { return e.Type() == t })
}

func (r *recordingEmitter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	store      *repositories.Store
	emitter    *recordingEmitter
	presence   *mocks.MockIPresence
	membership *MembershipManager
	sequencer  *Sequencer
	receipts   *ReceiptTracker
	counter    *NotificationCounter
}

// newFixture wires the core services on a temp badger. Presence knows the
// handles passed in; everyone else resolves to the bare id.
func newFixture(t *testing.T, members ...domain.ChatMember) *fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	store := repositories.NewStore(db, log, 50)
	emitter := &recordingEmitter{}

	ctrl := gomock.NewController(t)
	presence := mocks.NewMockIPresence(ctrl)
	known := lo.SliceToMap(members, func(m domain.ChatMember) (domain.UserID, domain.ChatMember) { return m.UserID, m })
	presence.EXPECT().Resolve(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, userIDs []domain.UserID) (map[domain.UserID]domain.ChatMember, error) {
			return lo.PickByKeys(known, userIDs), nil
		}).AnyTimes()

	counter := NewNotificationCounter(store, emitter, log)
	return &fixture{
		store:      store,
		emitter:    emitter,
		presence:   presence,
		membership: NewMembershipManager(store, presence, emitter, log),
		sequencer:  NewSequencer(store, emitter, presence, log, SequencerConfig{}, counter),
		receipts:   NewReceiptTracker(store, emitter, log, counter),
		counter:    counter,
	}
}

func (f *fixture) group(t *testing.T, creator domain.UserID, members ...domain.UserID) domain.Chat {
	t.Helper()
	chat, err := f.membership.CreateGroupChat(t.Context(), domain.CreateGroupChatCommand{
		Creator: creator,
		Members: append([]domain.UserID{creator}, members...),
		Name:    "team",
	})
	require.NoError(t, err)
	return chat
}

func (f *fixture) send(t *testing.T, chatID domain.ChatID, sender domain.UserID, content string) domain.Message {
	t.Helper()
	msg, err := f.sequencer.SendMessage(t.Context(), domain.SendMessageCommand{ChatID: chatID, SenderID: sender, Content: content})
	require.NoError(t, err)
	return msg
}

func (f *fixture) unread(t *testing.T, userID domain.UserID) int64 {
	t.Helper()
	count, err := f.counter.UnreadCount(t.Context(), userID)
	require.NoError(t, err)
	return count
}

// requireReconciled checks the cached counter against a live scan.
func (f *fixture) requireReconciled(t *testing.T, users ...domain.UserID) {
	t.Helper()
	for _, userID := range users {
		result, err := f.counter.Reconcile(t.Context(), userID, false)
		require.NoError(t, err)
		require.Zero(t, result.Drift(), "counter drift for %s", userID)
	}
}
