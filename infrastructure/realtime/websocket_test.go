package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-core/auth"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/infrastructure/presence"
	"chat-core/infrastructure/ratelimit"
	"chat-core/runtime"
	"chat-core/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// stubChats answers the socket commands; anything else panics on the nil interface.
type stubChats struct {
	services.IChatService
	sent chan domain.SendMessageCommand
}

func (s *stubChats) SendMessage(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	s.sent <- cmd
	return domain.Message{ID: "m-1", ChatID: cmd.ChatID, Sequence: 1}, nil
}

func (s *stubChats) MarkSeen(_ context.Context, _ domain.ChatID, _ domain.MessageID, _ domain.UserID) error {
	return errors.ErrNotAuthorized
}

func (s *stubChats) OpenChat(_ context.Context, _ domain.ChatID, _ domain.UserID, _ uint64) (int, int, error) {
	return 3, 2, nil
}

type wsFixture struct {
	server   *httptest.Server
	registry *runtime.Registry
	presence *presence.Directory
	chats    *stubChats
	tokens   *auth.Tokens
}

func newWsFixture(t *testing.T, options ...func(*Handler)) *wsFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &wsFixture{
		registry: runtime.NewRegistry(),
		presence: presence.NewDirectory(),
		chats:    &stubChats{sent: make(chan domain.SendMessageCommand, 1)},
		tokens:   auth.NewTokens("test-secret", time.Hour),
	}
	handler := NewHandler(f.chats, f.registry, f.presence, f.tokens, 0, log)
	for _, option := range options {
		option(handler)
	}
	f.server = httptest.NewServer(handler)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, userID domain.UserID) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.Generate(userID)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sessionsOf(registry *runtime.Registry, userID domain.UserID) int {
	return len(registry.GetSinksForUsers([]domain.UserID{userID}))
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	req := require.New(t)
	f := newWsFixture(t)

	resp, err := http.Get(f.server.URL)
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_DeliversEventsToSession(t *testing.T) {
	req := require.New(t)
	f := newWsFixture(t)
	ctx := t.Context()

	// Given a connected user
	conn := f.dial(t, "u1")
	req.Eventually(func() bool { return f.registry.IsConnected("u1") }, time.Second, 10*time.Millisecond)
	members, err := f.presence.Resolve(ctx, []domain.UserID{"u1"})
	req.NoError(err)
	req.True(members["u1"].IsOnline)

	// When an event targeting them is published locally
	transport := runtime.NewLocalTransport(f.registry)
	evt := event.MessageSeen{ChatID: "c1", MessageID: "m1", UserID: "u2", Members: []domain.UserID{"u1", "u2"}}
	req.NoError(transport.Publish(ctx, evt, []domain.UserID{"u1"}))

	// Then the envelope reaches the socket
	var envelope event.Envelope
	readJSON(t, conn, &envelope)
	req.Equal(event.MessageSeenType, envelope.Type)
	var payload event.MessageSeen
	req.NoError(json.Unmarshal(envelope.Payload, &payload))
	req.Equal(domain.MessageID("m1"), payload.MessageID)
}

func TestHandler_DispatchesClientCommands(t *testing.T) {
	req := require.New(t)
	f := newWsFixture(t)
	conn := f.dial(t, "u1")

	// When the client sends a message
	req.NoError(conn.WriteJSON(ClientCommand{Type: CommandSend, Ref: "r1", ChatID: "c1", Content: "hi"}))

	// Then the sender comes from the token, not the frame
	select {
	case cmd := <-f.chats.sent:
		req.Equal(domain.UserID("u1"), cmd.SenderID)
		req.Equal("hi", cmd.Content)
	case <-time.After(2 * time.Second):
		req.Fail("send command not dispatched")
	}
	var ack Reply
	readJSON(t, conn, &ack)
	req.Equal(replyAck, ack.Type)
	req.Equal("r1", ack.Ref)

	// And failures come back as error replies
	req.NoError(conn.WriteJSON(ClientCommand{Type: CommandSeen, Ref: "r2", ChatID: "c1", MessageID: "m1"}))
	var failed Reply
	readJSON(t, conn, &failed)
	req.Equal(replyError, failed.Type)
	req.Equal("r2", failed.Ref)

	req.NoError(conn.WriteJSON(ClientCommand{Type: "dance", Ref: "r3"}))
	var unknown Reply
	readJSON(t, conn, &unknown)
	req.Equal(replyError, unknown.Type)
	req.Contains(unknown.Error, "dance")
}

func TestHandler_ThrottlesSendCommands(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.NewKeyedLimiter(0.001, 1, log)
	f := newWsFixture(t, func(h *Handler) { h.UseRateLimit(limiter) })
	conn := f.dial(t, "u1")

	// Given a user whose single token is spent
	req.NoError(conn.WriteJSON(ClientCommand{Type: CommandSend, Ref: "r1", ChatID: "c1", Content: "hi"}))
	<-f.chats.sent
	var ack Reply
	readJSON(t, conn, &ack)
	req.Equal(replyAck, ack.Type)

	// When they send again
	req.NoError(conn.WriteJSON(ClientCommand{Type: CommandSend, Ref: "r2", ChatID: "c1", Content: "again"}))

	// Then the command is refused without reaching the service
	var refused Reply
	readJSON(t, conn, &refused)
	req.Equal(replyError, refused.Type)
	req.Equal("r2", refused.Ref)
	req.Equal(ErrRateLimited.Error(), refused.Error)
	req.Empty(f.chats.sent)
}

func TestHandler_UnsubscribesOnClose(t *testing.T) {
	req := require.New(t)
	f := newWsFixture(t)

	// Given two sessions of the same user
	first := f.dial(t, "u1")
	second := f.dial(t, "u1")
	req.Eventually(func() bool { return sessionsOf(f.registry, "u1") == 2 }, time.Second, 10*time.Millisecond)

	// When one closes the user stays online
	req.NoError(first.Close())
	req.Eventually(func() bool { return sessionsOf(f.registry, "u1") == 1 }, time.Second, 10*time.Millisecond)
	req.True(f.registry.IsConnected("u1"))

	// When the last closes the user goes offline
	req.NoError(second.Close())
	req.Eventually(func() bool { return !f.registry.IsConnected("u1") }, time.Second, 10*time.Millisecond)
	req.Eventually(func() bool {
		members, _ := f.presence.Resolve(t.Context(), []domain.UserID{"u1"})
		return !members["u1"].IsOnline
	}, time.Second, 10*time.Millisecond)
}

func TestSession_DropsWhenBufferFull(t *testing.T) {
	req := require.New(t)
	s := newSession("u1", nil, 1)
	evt := event.ChatDeleted{ChatID: "c1", UserID: "u1"}

	req.NoError(s.Consume(t.Context(), evt))
	req.ErrorIs(s.Consume(t.Context(), evt), ErrSlowConsumer)

	s.close()
	req.ErrorIs(s.Consume(t.Context(), evt), ErrSessionClosed)
}
