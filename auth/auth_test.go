package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/stretchr/testify/require"
)

var testCost = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}

func TestPasswords_HashAndVerify(t *testing.T) {
	req := require.New(t)
	passwords := NewPasswords(testCost)
	password := "MyPasswordIsTooStr0ng!"

	hash, err := passwords.Hash(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	match, stale, err := passwords.Verify(password, hash)
	req.NoError(err)
	req.True(match)
	req.False(stale)

	// Wrong password
	match, _, err = passwords.Verify("WrongPassword", hash)
	req.NoError(err)
	req.False(match)

	// Same password, fresh salt
	other, err := passwords.Hash(password)
	req.NoError(err)
	req.NotEqual(hash, other)
}

func TestPasswords_VerifyFlagsOtherCostAsStale(t *testing.T) {
	req := require.New(t)
	hash, err := NewPasswords(testCost).Hash("MyPasswordIsTooStr0ng!")
	req.NoError(err)

	match, stale, err := NewPasswords(Argon2Params{Memory: 2048, Iterations: 1, Parallelism: 1}).Verify("MyPasswordIsTooStr0ng!", hash)
	req.NoError(err)
	req.True(match)
	req.True(stale)
}

func TestPasswords_RejectsMalformedHashes(t *testing.T) {
	passwords := NewPasswords(testCost)
	tests := []struct {
		name string
		hash string
	}{
		{name: "Too few segments", hash: "$argon2id$garbage"},
		{name: "Other scheme", hash: "$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5"},
		{name: "Other version", hash: "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5"},
		{name: "Missing parameter", hash: "$argon2id$v=19$m=1024,t=1$c2FsdA$a2V5"},
		{name: "Non numeric parameter", hash: "$argon2id$v=19$m=lots,t=1,p=1$c2FsdA$a2V5"},
		{name: "Parallelism overflow", hash: "$argon2id$v=19$m=1024,t=1,p=300$c2FsdA$a2V5"},
		{name: "Bad salt", hash: "$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5"},
		{name: "Empty key", hash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := passwords.Verify("whatever", tt.hash)
			require.ErrorIs(t, err, errors.ErrMalformedHash)
		})
	}
}

func TestNewPasswords_ZeroCostUsesDefaults(t *testing.T) {
	require.Equal(t, DefaultArgon2Params, NewPasswords(Argon2Params{}).params)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"test@example.com", "ComplexPass123!", "tester", "Tester"}, false},
		{"Invalid email", RegisterRequest{"notanemail", "ComplexPass123!", "tester", ""}, true},
		{"Password too short", RegisterRequest{"test@example.com", "Short1!", "tester", ""}, true},
		{"Missing digit", RegisterRequest{"test@example.com", "NoDigitPass!", "tester", ""}, true},
		{"Missing special char", RegisterRequest{"test@example.com", "NoSpecialChar123", "tester", ""}, true},
		{"Missing uppercase", RegisterRequest{"test@example.com", "nouppercase123!", "tester", ""}, true},
		{"Password too long", RegisterRequest{"test@example.com", strings.Repeat("a", 73), "tester", ""}, true},
		{"Handle with separator", RegisterRequest{"test@example.com", "ComplexPass123!", "te:ster", ""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrInvalidArgument)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTokens_GenerateAndValidate(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test-secret", time.Hour)

	token, err := tokens.Generate("alice")
	req.NoError(err)

	claims, err := tokens.Validate(token)
	req.NoError(err)
	req.Equal("alice", claims.UserID)

	// Signed with another secret
	_, err = NewTokens("other-secret", time.Hour).Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)

	// Expired
	expired, err := NewTokens("test-secret", -time.Minute).Generate("alice")
	req.NoError(err)
	_, err = tokens.Validate(expired)
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestFromRequest(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest(http.MethodGet, "/chats", nil)
	r.Header.Set("Authorization", "Bearer abc")
	req.Equal("abc", FromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=xyz", nil)
	req.Equal("xyz", FromRequest(r))
}

func TestMiddleware(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test-secret", time.Hour)
	var seen domain.UserID
	handler := Middleware(tokens, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	// Public path goes through without token
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	req.Equal(http.StatusNoContent, rec.Code)

	// Missing token
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)

	// Valid token injects the user
	token, err := tokens.Generate("bob")
	req.NoError(err)
	r := httptest.NewRequest(http.MethodGet, "/chats", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	req.Equal(http.StatusNoContent, rec.Code)
	req.Equal(domain.UserID("bob"), seen)
}

func BenchmarkPasswords_Hash(b *testing.B) {
	passwords := NewPasswords(DefaultArgon2Params)
	for i := 0; i < b.N; i++ {
		_, _ = passwords.Hash("A-very-long-and-complex-password-for-bench-123!")
	}
}
