package domain

import (
	"testing"

	"chat-core/errors"

	"github.com/stretchr/testify/require"
)

func TestDirectKey_IsOrderIndependent(t *testing.T) {
	req := require.New(t)
	req.Equal(DirectKey("alice", "bob"), DirectKey("bob", "alice"))
	req.NotEqual(DirectKey("alice", "bob"), DirectKey("alice", "carol"))
}

func TestChat_WithMember_DoesNotDuplicate(t *testing.T) {
	req := require.New(t)
	chat := Chat{Members: []UserID{"u1", "u2"}}

	updated := chat.WithMember("u2").WithMember("u3")

	req.Equal([]UserID{"u1", "u2", "u3"}, updated.Members)
	// The original value is left untouched
	req.Equal([]UserID{"u1", "u2"}, chat.Members)
	req.Equal([]UserID{"u1", "u3"}, updated.WithoutMember("u2").Members)
	req.Equal([]UserID{"u2", "u3"}, updated.Others("u1"))
}

func TestMessage_WithSeenBy_IsIdempotent(t *testing.T) {
	req := require.New(t)
	msg := Message{SenderID: "u1", SeenBy: []UserID{"u1"}}

	once := msg.WithSeenBy("u2")
	twice := once.WithSeenBy("u2")

	req.Equal(once.SeenBy, twice.SeenBy)
	req.True(twice.IsSeenBy("u2"))
	req.False(msg.IsSeenBy("u2"))
}

func TestHasBody(t *testing.T) {
	req := require.New(t)
	req.True(HasBody("hello", ""))
	req.True(HasBody("", "file-1"))
	req.False(HasBody("   ", ""))
	req.False(HasBody("", ""))
}

func TestCursor_RoundTrip(t *testing.T) {
	req := require.New(t)

	seq, ok, err := NewCursor(42).Sequence()
	req.NoError(err)
	req.True(ok)
	req.Equal(uint64(42), seq)

	_, ok, err = Cursor("").Sequence()
	req.NoError(err)
	req.False(ok)

	_, _, err = Cursor("not base64 !").Sequence()
	req.ErrorIs(err, errors.ErrInvalidArgument)
}

func TestParseNotificationType(t *testing.T) {
	req := require.New(t)
	nt, err := ParseNotificationType("mention")
	req.NoError(err)
	req.Equal(NotificationMention, nt)

	_, err = ParseNotificationType("poke")
	req.Error(err)
}
