// Package presence resolves chat member profiles and online state.
package presence

import (
	"context"
	"sync"

	"chat-core/domain"
)

// Directory keeps profiles in memory. Used for single node deployments and tests.
type Directory struct {
	mu       sync.RWMutex
	profiles map[domain.UserID]domain.ChatMember
	online   map[domain.UserID]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		profiles: make(map[domain.UserID]domain.ChatMember),
		online:   make(map[domain.UserID]struct{}),
	}
}

// Resolve only returns users it knows, either by profile or by being online.
func (d *Directory) Resolve(_ context.Context, userIDs []domain.UserID) (map[domain.UserID]domain.ChatMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := make(map[domain.UserID]domain.ChatMember, len(userIDs))
	for _, userID := range userIDs {
		member, known := d.profiles[userID]
		_, online := d.online[userID]
		if !known && !online {
			continue
		}
		member.UserID = userID
		member.IsOnline = online
		members[userID] = member
	}
	return members, nil
}

func (d *Directory) Upsert(_ context.Context, member domain.ChatMember) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	member.IsOnline = false
	d.profiles[member.UserID] = member
	return nil
}

func (d *Directory) SetOnline(_ context.Context, userID domain.UserID, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if online {
		d.online[userID] = struct{}{}
	} else {
		delete(d.online, userID)
	}
	return nil
}
