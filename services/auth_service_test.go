package services

import (
	"log/slog"
	"testing"
	"time"

	"chat-core/auth"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var cheapPasswords = auth.NewPasswords(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1})

func TestAuthService_RegisterAndLogin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	tokens := auth.NewTokens("secret", time.Hour)
	service := NewAuthService(f.store, tokens, cheapPasswords, f.presence, slog.Default())

	var profile domain.ChatMember
	f.presence.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, member domain.ChatMember) error {
			profile = member
			return nil
		}).Times(1)

	// Given a registered account
	token, err := service.Register(ctx, auth.RegisterRequest{
		Email:       "alice@example.com",
		Password:    "ComplexPass123!",
		Handle:      "alice",
		DisplayName: "Alice",
	})
	req.NoError(err)
	claims, err := tokens.Validate(token.String())
	req.NoError(err)
	req.Equal(string(profile.UserID), claims.UserID)
	req.Equal("alice", profile.Handle)

	// When logging in with the right password, the same user comes back
	token, err = service.Login(ctx, "alice@example.com", "ComplexPass123!")
	req.NoError(err)
	again, err := tokens.Validate(token.String())
	req.NoError(err)
	req.Equal(claims.UserID, again.UserID)

	// Wrong password and unknown email look the same
	_, err = service.Login(ctx, "alice@example.com", "WrongPass123!")
	req.ErrorIs(err, errors.ErrInvalidCredentials)
	_, err = service.Login(ctx, "nobody@example.com", "ComplexPass123!")
	req.ErrorIs(err, errors.ErrInvalidCredentials)

	// The email cannot be registered twice
	_, err = service.Register(ctx, auth.RegisterRequest{Email: "alice@example.com", Password: "ComplexPass123!", Handle: "alice2"})
	req.ErrorIs(err, errors.ErrAlreadyExists)
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	f := newFixture(t)
	service := NewAuthService(f.store, auth.NewTokens("secret", time.Hour), cheapPasswords, f.presence, slog.Default())

	_, err := service.Register(t.Context(), auth.RegisterRequest{Email: "bob@example.com", Password: "weakpassword", Handle: "bob"})

	require.ErrorIs(t, err, errors.ErrInvalidPassword)
}

func TestAuthService_Login_RehashesWithCurrentCost(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := t.Context()
	tokens := auth.NewTokens("secret", time.Hour)
	f.presence.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	// Given an account hashed under an older, cheaper cost
	old := NewAuthService(f.store, tokens, cheapPasswords, f.presence, slog.Default())
	_, err := old.Register(ctx, auth.RegisterRequest{Email: "carol@example.com", Password: "ComplexPass123!", Handle: "carol"})
	req.NoError(err)
	before := storedHash(t, f, "carol@example.com")
	req.Contains(before, "m=1024,t=1,p=1")

	// When carol logs in once the cost was raised
	raised := auth.NewPasswords(auth.Argon2Params{Memory: 2048, Iterations: 2, Parallelism: 1})
	current := NewAuthService(f.store, tokens, raised, f.presence, slog.Default())
	_, err = current.Login(ctx, "carol@example.com", "ComplexPass123!")
	req.NoError(err)

	// Then the stored hash carries the new cost and still verifies
	after := storedHash(t, f, "carol@example.com")
	req.Contains(after, "m=2048,t=2,p=1")
	_, err = current.Login(ctx, "carol@example.com", "ComplexPass123!")
	req.NoError(err)
	req.Equal(after, storedHash(t, f, "carol@example.com"))
}

func storedHash(t *testing.T, f *fixture, email string) string {
	t.Helper()
	var user repositories.User
	require.NoError(t, f.store.View(func(tx *repositories.Txn) error {
		var err error
		user, err = tx.GetUserByEmail(email)
		return err
	}))
	return user.PasswordHash
}
