package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-core"

// Claims defines the data stored inside the JWT.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens signs and validates HS256 tokens with the server secret.
type Tokens struct {
	secret   []byte
	duration time.Duration
}

func NewTokens(secret string, duration time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), duration: duration}
}

// Generate creates a signed JWT for a user, valid for the configured duration.
func (t *Tokens) Generate(userID domain.UserID) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: string(userID),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   string(userID),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate checks the signature, the algorithm and the expiration of a JWT.
func (t *Tokens) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}

// FromRequest reads the token from the Authorization header, falling back to
// the token query parameter for websocket clients that cannot set headers.
func FromRequest(r *http.Request) string {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}
