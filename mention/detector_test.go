package mention

import (
	"testing"

	"chat-core/domain"

	"github.com/stretchr/testify/require"
)

func members() []domain.ChatMember {
	return []domain.ChatMember{
		{UserID: "u1", Handle: "alice"},
		{UserID: "u2", Handle: "Bob"},
		{UserID: "u3", Handle: "bobby"},
		{UserID: "u4"},
	}
}

func TestDetector_Mentioned(t *testing.T) {
	req := require.New(t)
	detector, err := NewDetector(members())
	req.NoError(err)

	tests := []struct {
		name     string
		content  string
		expected []domain.UserID
	}{
		{name: "No sigil", content: "hello bob", expected: nil},
		{name: "Case insensitive handle", content: "hey @BOB, lunch?", expected: []domain.UserID{"u2"}},
		{name: "Longer handle does not match prefix", content: "@bobby are you there", expected: []domain.UserID{"u3"}},
		{name: "Falls back to user id", content: "ping @u4", expected: []domain.UserID{"u4"}},
		{name: "Email is not a mention", content: "write to alice@bob.com", expected: nil},
		{name: "Several mentions", content: "@alice and @bob", expected: []domain.UserID{"u1", "u2"}},
		{name: "End of sentence", content: "thanks @bob.", expected: []domain.UserID{"u2"}},
		{name: "Ellipsis", content: "ok @bob...", expected: []domain.UserID{"u2"}},
		{name: "Trailing dash", content: "@bob-", expected: []domain.UserID{"u2"}},
		{name: "Dotted handle is another handle", content: "@bob.smith hi", expected: nil},
		{name: "Closing punctuation", content: "(@alice)", expected: []domain.UserID{"u1"}},
		{name: "Broadcast", content: "@everyone standup", expected: []domain.UserID{"u1", "u2", "u3", "u4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := detector.Mentioned(tt.content)
			var got []domain.UserID
			for userID := range found {
				got = append(got, userID)
			}
			require.ElementsMatch(t, tt.expected, got)
		})
	}
}
