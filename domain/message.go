// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable except for their seen-by set.
package domain

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"chat-core/errors"
)

type MessageID string

// Message is ordered inside its chat by Sequence; CreatedAt is advisory.
type Message struct {
	ID        MessageID
	ChatID    ChatID
	Sequence  uint64
	SenderID  UserID
	Content   string
	FileID    string
	SeenBy    []UserID
	CreatedAt time.Time
}

func (m Message) IsSeenBy(userID UserID) bool {
	return slices.Contains(m.SeenBy, userID)
}

// WithSeenBy returns a copy where userID belongs to SeenBy. The set only grows.
func (m Message) WithSeenBy(userID UserID) Message {
	if m.IsSeenBy(userID) {
		return m
	}
	m.SeenBy = append(slices.Clone(m.SeenBy), userID)
	return m
}

// HasBody reports whether the message carries text or an attachment.
func HasBody(content, fileID string) bool {
	return strings.TrimSpace(content) != "" || strings.TrimSpace(fileID) != ""
}

const cursorPrefix = "seq:"

// Cursor is an opaque continuation token wrapping the last delivered sequence.
type Cursor string

func NewCursor(sequence uint64) Cursor {
	raw := cursorPrefix + strconv.FormatUint(sequence, 10)
	return Cursor(base64.RawURLEncoding.EncodeToString([]byte(raw)))
}

// Sequence decodes the cursor. An empty cursor means "start from the newest".
func (c Cursor) Sequence() (uint64, bool, error) {
	if c == "" {
		return 0, false, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return 0, false, errors.Invalid("malformed cursor")
	}
	value, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, false, errors.Invalid("malformed cursor")
	}
	seq, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: cursor sequence: %v", errors.ErrInvalidArgument, err)
	}
	return seq, true, nil
}
