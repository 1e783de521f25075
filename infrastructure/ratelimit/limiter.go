// Package ratelimit throttles callers with one token bucket per key
// (user id, or remote address before authentication).
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"chat-core/auth"
	"chat-core/domain"

	"golang.org/x/time/rate"
)

const (
	DefaultIdleTimeout  = 3 * time.Minute
	cleanupEveryDefault = time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter hands out one limiter per key. Idle keys are evicted by Run.
type KeyedLimiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	limit       rate.Limit
	burst       int
	idleTimeout time.Duration
	now         func() time.Time
	log         *slog.Logger
}

func NewKeyedLimiter(perSecond float64, burst int, log *slog.Logger) *KeyedLimiter {
	return &KeyedLimiter{
		entries:     make(map[string]*entry),
		limit:       rate.Limit(perSecond),
		burst:       burst,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		log:         log,
	}
}

// Allow consumes one token for key.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = l.now()
	return e.limiter.AllowN(e.lastSeen, 1)
}

// Run evicts idle keys until ctx is done.
func (l *KeyedLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(cleanupEveryDefault)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("Context done, stopping rate limiter cleanup")
			return nil
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *KeyedLimiter) evictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for key, e := range l.entries {
		if l.now().Sub(e.lastSeen) > l.idleTimeout {
			delete(l.entries, key)
			evicted++
		}
	}
	return evicted
}

// Middleware answers 429 once the caller's bucket is empty. Authenticated
// requests are keyed by user, the others by remote address.
func (l *KeyedLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := requestKey(r)
		if !l.Allow(key) {
			l.log.Warn("Rate limit exceeded", "key", key, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserKey is the bucket shared by every transport a user calls through.
func UserKey(userID domain.UserID) string {
	return "user:" + string(userID)
}

func requestKey(r *http.Request) string {
	if userID, ok := auth.UserIDFrom(r.Context()); ok {
		return UserKey(userID)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
