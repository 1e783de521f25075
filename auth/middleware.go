package auth

import (
	"context"
	"net/http"

	"chat-core/domain"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware rejects requests without a valid token and injects the user
// identity into the request context for the handlers.
func Middleware(tokens *Tokens, public ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(public))
	for _, path := range public {
		skip[path] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			token := FromRequest(r)
			if token == "" {
				http.Error(w, "authorization token is missing", http.StatusUnauthorized)
				return
			}
			claims, err := tokens.Validate(token)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), domain.UserID(claims.UserID))))
		})
	}
}

func WithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFrom returns the authenticated user, false on unauthenticated contexts.
func UserIDFrom(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(userIDKey).(domain.UserID)
	return userID, ok && userID != ""
}
