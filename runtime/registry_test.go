package runtime

import (
	"context"
	"testing"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"

	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func TestRegistry_Subscribe_One_User_Two_Sessions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given no user is connected
	req.False(registry.IsConnected("alice"))
	req.Zero(registry.Connected())

	// When alice opens two sessions
	registry.Subscribe("alice", "tab-1", Sink{name: "tab-1"})
	registry.Subscribe("alice", "tab-2", Sink{name: "tab-2"})

	// Then both sinks receive her events
	req.True(registry.IsConnected("alice"))
	req.Equal(1, registry.Connected())
	req.ElementsMatch(
		[]Sink{{name: "tab-1"}, {name: "tab-2"}},
		toSinks(registry.GetSinksForUsers([]domain.UserID{"alice"})),
	)
}

func TestRegistry_GetSinksForUsers_SkipsOfflineAndDuplicates(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Subscribe("alice", "s1", Sink{name: "alice"})
	registry.Subscribe("bob", "s2", Sink{name: "bob"})

	sinks := registry.GetSinksForUsers([]domain.UserID{"alice", "carol", "alice", "bob"})

	req.ElementsMatch([]Sink{{name: "alice"}, {name: "bob"}}, toSinks(sinks))
}

func TestRegistry_Unsubscribe(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Subscribe("alice", "tab-1", Sink{})
	registry.Subscribe("alice", "tab-2", Sink{})

	// Closing one tab keeps alice connected
	req.False(registry.Unsubscribe("alice", "tab-1"))
	req.True(registry.IsConnected("alice"))

	// Closing the last one disconnects her
	req.True(registry.Unsubscribe("alice", "tab-2"))
	req.False(registry.IsConnected("alice"))
	req.Zero(registry.Connected())

	// Unknown sessions are ignored
	req.False(registry.Unsubscribe("alice", "tab-3"))
}

func toSinks(sinks []contract.EventSink) []Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		out = append(out, s.(Sink))
	}
	return out
}
