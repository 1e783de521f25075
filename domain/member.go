// Package domain contains core concepts of the chat system.
// This file defines ChatMember, the read-only projection of a participant.
// The core never writes these fields; presence resolves them.
package domain

type ChatMember struct {
	UserID      UserID `json:"userId"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	IsOnline    bool   `json:"isOnline"`
}

// MentionHandle is the token other members type to mention this participant.
// Falls back to the user id when presence has no handle.
func (m ChatMember) MentionHandle() string {
	if m.Handle != "" {
		return m.Handle
	}
	return string(m.UserID)
}

func (m ChatMember) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.MentionHandle()
}
