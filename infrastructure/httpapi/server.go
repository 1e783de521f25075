// Package httpapi exposes the chat core over HTTP. Every route acts on behalf
// of the user carried by the bearer token.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chat-core/auth"
	"chat-core/infrastructure/ratelimit"
	"chat-core/services"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const (
	maxPageSize    = 200
	maxUploadBytes = 32 << 20
)

// IFileStore serves uploaded files back.
type IFileStore interface {
	Open(ctx context.Context, ref string) (*os.File, error)
}

// HealthReport is rendered by GET /health.
type HealthReport func() map[string]any

type Server struct {
	chats    services.IChatService
	counter  services.INotificationCounter
	accounts services.IAuthService
	files    IFileStore
	tokens   *auth.Tokens
	realtime http.Handler
	health   HealthReport
	limiter  *ratelimit.KeyedLimiter
	log      *slog.Logger
}

func NewServer(chats services.IChatService, counter services.INotificationCounter, accounts services.IAuthService,
	files IFileStore, tokens *auth.Tokens, realtime http.Handler, health HealthReport, log *slog.Logger) *Server {
	return &Server{
		chats:    chats,
		counter:  counter,
		accounts: accounts,
		files:    files,
		tokens:   tokens,
		realtime: realtime,
		health:   health,
		log:      log,
	}
}

// UseRateLimit throttles every route per caller.
func (s *Server) UseRateLimit(limiter *ratelimit.KeyedLimiter) {
	s.limiter = limiter
}

// Handler builds the router wrapped in auth and CORS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	if s.realtime != nil {
		r.Handle("/ws", s.realtime).Methods(http.MethodGet)
	}

	chats := r.PathPrefix("/chats").Subrouter()
	chats.HandleFunc("", s.listChats).Methods(http.MethodGet)
	chats.HandleFunc("/direct", s.createDirectChat).Methods(http.MethodPost)
	chats.HandleFunc("/group", s.createGroupChat).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}", s.getChat).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}/members", s.listMembers).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}/members", s.addMember).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}/members/{userId}", s.removeMember).Methods(http.MethodDelete)
	chats.HandleFunc("/{chatId}/messages", s.sendMessage).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}/messages", s.listMessages).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}/messages/{messageId}/seen", s.markSeen).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}/messages/{messageId}/seen-by", s.getSeenBy).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}/open", s.openChat).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}/search", s.search).Methods(http.MethodGet)

	notifications := r.PathPrefix("/notifications").Subrouter()
	notifications.HandleFunc("", s.listNotifications).Methods(http.MethodGet)
	notifications.HandleFunc("", s.notify).Methods(http.MethodPost)
	notifications.HandleFunc("/count", s.unreadCount).Methods(http.MethodGet)
	notifications.HandleFunc("/read-all", s.readAll).Methods(http.MethodPost)
	notifications.HandleFunc("/{notificationId}/read", s.markRead).Methods(http.MethodPost)

	r.HandleFunc("/me/profile", s.updateProfile).Methods(http.MethodPut)
	r.HandleFunc("/files", s.upload).Methods(http.MethodPost)
	r.HandleFunc("/files/{owner}/{name}", s.download).Methods(http.MethodGet)

	// The websocket handler authenticates itself, tokens may arrive as a query parameter
	var routes http.Handler = r
	if s.limiter != nil {
		routes = s.limiter.Middleware(r)
	}
	secured := auth.Middleware(s.tokens, "/health", "/auth/register", "/auth/login", "/ws")(routes)

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(secured)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	report := map[string]any{"status": "healthy"}
	if s.health != nil {
		for k, v := range s.health() {
			report[k] = v
		}
	}
	writeJSON(w, http.StatusOK, report)
}
