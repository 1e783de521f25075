package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chat-core/auth"
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/infrastructure/ratelimit"
	"chat-core/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize       = 16 * 1024
	DefaultSendBacklog = 256
)

var ErrSessionClosed = errors.New("session closed")
var ErrSlowConsumer = errors.New("session send buffer full")
var ErrRateLimited = errors.New("rate limited, slow down")

// Session is one websocket connection of a user. It is registered as the
// user's sink while the connection lives.
type Session struct {
	id     string
	userID domain.UserID
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newSession(userID domain.UserID, conn *websocket.Conn, backlog int) *Session {
	return &Session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, backlog),
		done:   make(chan struct{}),
	}
}

// Consume never blocks the fan-out: a session that cannot keep up loses the event.
func (s *Session) Consume(_ context.Context, e event.DomainEvent) error {
	data, err := event.Encode(e, nil)
	if err != nil {
		return err
	}
	return s.enqueue(data)
}

func (s *Session) enqueue(data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("session %s of %s: %w", s.id, s.userID, ErrSlowConsumer)
	}
}

func (s *Session) close() {
	s.once.Do(func() { close(s.done) })
}

// ClientCommand is a frame sent by the client over the socket.
type ClientCommand struct {
	Type      string           `json:"type"`
	Ref       string           `json:"ref,omitempty"`
	ChatID    domain.ChatID    `json:"chatId"`
	Content   string           `json:"content,omitempty"`
	FileID    string           `json:"fileId,omitempty"`
	MessageID domain.MessageID `json:"messageId,omitempty"`
	UpTo      uint64           `json:"upTo,omitempty"`
}

// Reply acknowledges a ClientCommand, matched by Ref.
type Reply struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

const (
	CommandSend = "send"
	CommandSeen = "seen"
	CommandOpen = "open"

	replyAck   = "ack"
	replyError = "error"
)

type Handler struct {
	chats    services.IChatService
	registry contract.IRegistry
	presence contract.IPresence
	tokens   *auth.Tokens
	upgrader websocket.Upgrader
	backlog  int
	limiter  *ratelimit.KeyedLimiter
	log      *slog.Logger
}

func NewHandler(chats services.IChatService, registry contract.IRegistry, presence contract.IPresence,
	tokens *auth.Tokens, backlog int, log *slog.Logger) *Handler {
	if backlog <= 0 {
		backlog = DefaultSendBacklog
	}
	return &Handler{
		chats:    chats,
		registry: registry,
		presence: presence,
		tokens:   tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		backlog: backlog,
		log:     log,
	}
}

// UseRateLimit throttles send commands per user.
func (h *Handler) UseRateLimit(limiter *ratelimit.KeyedLimiter) {
	h.limiter = limiter
}

// ServeHTTP authenticates before upgrading, so a bad token gets a plain 401.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Validate(auth.FromRequest(r))
	if err != nil {
		h.log.Debug("Rejecting websocket", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	session := newSession(domain.UserID(claims.UserID), conn, h.backlog)
	ctx := context.WithoutCancel(r.Context())

	h.registry.Subscribe(session.userID, session.id, session)
	if err = h.presence.SetOnline(ctx, session.userID, true); err != nil {
		h.log.Warn("Unable to mark user online", "user_id", session.userID, "error", err)
	}
	h.log.Info("Session opened", "user_id", session.userID, "session_id", session.id)

	go h.writePump(session)
	h.readPump(ctx, session)
}

func (h *Handler) readPump(ctx context.Context, s *Session) {
	defer func() {
		s.close()
		_ = s.conn.Close()
		if h.registry.Unsubscribe(s.userID, s.id) {
			if err := h.presence.SetOnline(ctx, s.userID, false); err != nil {
				h.log.Warn("Unable to mark user offline", "user_id", s.userID, "error", err)
			}
		}
		h.log.Info("Session closed", "user_id", s.userID, "session_id", s.id)
	}()
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("Websocket read failed", "user_id", s.userID, "error", err)
			}
			return
		}
		var cmd ClientCommand
		if err = json.Unmarshal(frame, &cmd); err != nil {
			h.reply(s, Reply{Type: replyError, Error: "malformed frame"})
			continue
		}
		data, err := h.dispatch(ctx, s.userID, cmd)
		if err != nil {
			h.reply(s, Reply{Type: replyError, Ref: cmd.Ref, Error: err.Error()})
			continue
		}
		h.reply(s, Reply{Type: replyAck, Ref: cmd.Ref, Data: data})
	}
}

func (h *Handler) dispatch(ctx context.Context, userID domain.UserID, cmd ClientCommand) (any, error) {
	switch cmd.Type {
	case CommandSend:
		if h.limiter != nil && !h.limiter.Allow(ratelimit.UserKey(userID)) {
			return nil, ErrRateLimited
		}
		msg, err := h.chats.SendMessage(ctx, domain.SendMessageCommand{
			ChatID:   cmd.ChatID,
			SenderID: userID,
			Content:  cmd.Content,
			FileID:   cmd.FileID,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"messageId": msg.ID, "sequence": msg.Sequence}, nil
	case CommandSeen:
		return nil, h.chats.MarkSeen(ctx, cmd.ChatID, cmd.MessageID, userID)
	case CommandOpen:
		seen, read, err := h.chats.OpenChat(ctx, cmd.ChatID, userID, cmd.UpTo)
		if err != nil {
			return nil, err
		}
		return map[string]int{"seen": seen, "read": read}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Type)
	}
}

func (h *Handler) reply(s *Session, r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		h.log.Error("Unable to encode reply", "error", err)
		return
	}
	if err = s.enqueue(data); err != nil {
		h.log.Warn("Reply dropped", "user_id", s.userID, "error", err)
	}
}

// writePump owns every write on the connection.
func (h *Handler) writePump(s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}
