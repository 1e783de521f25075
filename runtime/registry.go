package runtime

import (
	"sync"

	"chat-core/contract"
	"chat-core/domain"
)

// Registry tracks the live sessions of this instance. A user may hold several
// sessions at once (tabs, devices), each with its own sink.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]map[string]contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.UserID]map[string]contract.EventSink)}
}

// GetSinksForUsers resolves users into the sinks of their connected sessions.
// Users without a session are skipped.
func (r *Registry) GetSinksForUsers(userIDs []domain.UserID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	seen := make(map[domain.UserID]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		for _, sink := range r.sessions[userID] {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Subscribe registers one session of userID, replacing any sink already
// registered under the same sessionID.
func (r *Registry) Subscribe(userID domain.UserID, sessionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[userID]; !ok {
		r.sessions[userID] = make(map[string]contract.EventSink)
	}
	r.sessions[userID][sessionID] = sink
}

// Unsubscribe removes the session and reports whether it was the last one of
// the user. Empty user entries are dropped so the map does not grow forever.
func (r *Registry) Unsubscribe(userID domain.UserID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.sessions[userID]
	if !ok {
		return false
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.sessions, userID)
		return true
	}
	return false
}

func (r *Registry) IsConnected(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// Connected counts users with at least one session.
func (r *Registry) Connected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
