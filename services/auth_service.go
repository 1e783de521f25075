package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-core/auth"
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"

	"github.com/google/uuid"
)

type IAuthService interface {
	Login(ctx context.Context, email, password string) (Token, error)
	Register(ctx context.Context, req auth.RegisterRequest) (Token, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

// AuthService issues tokens for accounts stored next to the chats. The
// profile (handle, display name) is published to presence on registration.
type AuthService struct {
	store     *repositories.Store
	tokens    *auth.Tokens
	passwords *auth.Passwords
	presence  contract.IPresence
	log       *slog.Logger
}

func NewAuthService(store *repositories.Store, tokens *auth.Tokens, passwords *auth.Passwords,
	presence contract.IPresence, log *slog.Logger) *AuthService {
	return &AuthService{store: store, tokens: tokens, passwords: passwords, presence: presence, log: log}
}

func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest) (Token, error) {
	// 1. Validate business rules before any expensive cryptographic operation
	if err := auth.ValidateRegister(req); err != nil {
		return "", err
	}

	// 2. Hash the password so the repository never sees it in clear
	hashedPassword, err := s.passwords.Hash(req.Password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the account
	user := repositories.User{
		ID:           domain.UserID(uuid.NewString()),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}
	if err = s.store.Update(func(tx *repositories.Txn) error {
		return tx.CreateUser(user)
	}); err != nil {
		return "", fmt.Errorf("register: %w", err)
	}

	// 4. Publish the profile, then issue the first token
	if err = s.presence.Upsert(ctx, domain.ChatMember{
		UserID:      user.ID,
		Handle:      req.Handle,
		DisplayName: req.DisplayName,
	}); err != nil {
		return "", fmt.Errorf("publish profile: %w", err)
	}
	return s.issue(user.ID)
}

// Login answers ErrInvalidCredentials for unknown emails and wrong passwords
// alike, so accounts cannot be enumerated.
func (s *AuthService) Login(_ context.Context, email, password string) (Token, error) {
	var user repositories.User
	err := s.store.View(func(tx *repositories.Txn) error {
		var err error
		user, err = tx.GetUserByEmail(strings.TrimSpace(email))
		return err
	})
	if err != nil {
		return "", errors.ErrInvalidCredentials
	}

	match, stale, err := s.passwords.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error("Stored password hash unreadable", "user_id", user.ID, "error", err)
		return "", errors.ErrInvalidCredentials
	}
	if !match {
		return "", errors.ErrInvalidCredentials
	}
	if stale {
		s.rehash(user, password)
	}
	return s.issue(user.ID)
}

// rehash moves an account to the current hashing cost. The login goes on
// with the old hash when this fails.
func (s *AuthService) rehash(user repositories.User, password string) {
	hash, err := s.passwords.Hash(password)
	if err == nil {
		err = s.store.Update(func(tx *repositories.Txn) error {
			return tx.UpdatePasswordHash(user.Email, user.PasswordHash, hash)
		})
	}
	if err != nil {
		s.log.Warn("Password rehash skipped", "user_id", user.ID, "error", err)
		return
	}
	s.log.Debug("Password rehashed with current parameters", "user_id", user.ID)
}

func (s *AuthService) issue(userID domain.UserID) (Token, error) {
	token, err := s.tokens.Generate(userID)
	if err != nil {
		return "", fmt.Errorf("token generation: %w", err)
	}
	return Token(token), nil
}
