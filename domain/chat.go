// Package domain contains core concepts of the chat system.
// This file defines Chat conversations and their membership invariants.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

type UserID string

type ChatID string

// Chat is either a direct message between exactly two users or a group.
// DM membership is fixed at creation; group membership changes through the
// membership manager only.
type Chat struct {
	ID            ChatID
	IsGroup       bool
	Name          string
	ImageURL      string
	Members       []UserID
	LastMessageID *MessageID
	CreatedBy     UserID
	CreatedAt     time.Time
}

func (c Chat) HasMember(userID UserID) bool {
	return slices.Contains(c.Members, userID)
}

// Others returns every member except the given one, in membership order.
func (c Chat) Others(userID UserID) []UserID {
	return lo.Without(c.Members, userID)
}

// WithMember returns a copy of the chat with userID appended, unless already present.
func (c Chat) WithMember(userID UserID) Chat {
	if c.HasMember(userID) {
		return c
	}
	c.Members = append(slices.Clone(c.Members), userID)
	return c
}

func (c Chat) WithoutMember(userID UserID) Chat {
	c.Members = lo.Without(c.Members, userID)
	return c
}

// DirectKey is the unordered pair identifying a DM, so (a,b) and (b,a) collide.
func DirectKey(a, b UserID) string {
	if a > b {
		a, b = b, a
	}
	return string(a) + ":" + string(b)
}
