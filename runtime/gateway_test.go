package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestGateway_Emit_NeverBlocks(t *testing.T) {
	req := require.New(t)
	gateway := NewGateway(slog.Default(), 2)

	// When more events than the buffer holds are emitted
	gateway.Emit(
		event.NotificationCountChanged{UserID: "a", Count: 1},
		event.NotificationCountChanged{UserID: "a", Count: 2},
		event.NotificationCountChanged{UserID: "a", Count: 3},
	)

	// Then the overflow is dropped and the first ones kept in order
	length, capacity := gateway.Backlog()
	req.Equal(2, length)
	req.Equal(2, capacity)
	req.Equal(event.NotificationCountChanged{UserID: "a", Count: 1}, <-gateway.Events())
	req.Equal(event.NotificationCountChanged{UserID: "a", Count: 2}, <-gateway.Events())
}

func TestLocalTransport_Publish(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	ok := mocks.NewMockEventSink(ctrl)
	broken := mocks.NewMockEventSink(ctrl)
	evt := event.NotificationCountChanged{UserID: "bob", Count: 1}

	// Given bob has two sessions, one of them broken
	registry.EXPECT().GetSinksForUsers([]domain.UserID{"bob"}).Return([]contract.EventSink{broken, ok})
	broken.EXPECT().Consume(gomock.Any(), evt).Return(fmt.Errorf("closed"))
	ok.EXPECT().Consume(gomock.Any(), evt).Return(nil)

	// When publishing
	err := NewLocalTransport(registry).Publish(context.Background(), evt, evt.Audience())

	// Then the healthy session still got it and the failure is reported
	req.Error(err)
	req.ErrorContains(err, "closed")
}
