package event

import (
	"testing"
	"time"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_Decode_RestoresTypedEvent(t *testing.T) {
	req := require.New(t)
	sent := MessageSent{
		ChatID:    "chat-1",
		MessageID: "msg-1",
		Sequence:  7,
		SenderID:  "u1",
		Content:   "hello",
		At:        time.Unix(0, 1700000000000000000).UTC(),
		Members:   []domain.UserID{"u1", "u2"},
	}

	data, err := Encode(sent, []domain.UserID{"u2"})
	req.NoError(err)

	decoded, targets, err := Decode(data)
	req.NoError(err)
	req.Equal([]domain.UserID{"u2"}, targets)
	req.Equal(sent, decoded)
}

func TestEnvelope_Decode_UnknownType(t *testing.T) {
	req := require.New(t)
	_, _, err := Decode([]byte(`{"type":"typing","payload":{}}`))
	req.ErrorIs(err, errors.ErrUnknownEvent)
}

func TestMemberRemoved_Audience_IncludesRemovedUser(t *testing.T) {
	req := require.New(t)
	evt := MemberRemoved{ChatID: "c", UserID: "u3", Members: []domain.UserID{"u1", "u2"}}
	req.ElementsMatch([]domain.UserID{"u1", "u2", "u3"}, evt.Audience())
}
