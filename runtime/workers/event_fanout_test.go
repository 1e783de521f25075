package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Fanout(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	transport := mocks.NewMockITransport(ctrl)
	index := mocks.NewMockEventSink(ctrl)
	evt := event.MessageSent{ChatID: "c1", MessageID: "m1", Sequence: 1, SenderID: "alice", Members: []domain.UserID{"alice", "bob"}}

	// Given a permanent sink and a transport
	index.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	transport.EXPECT().Publish(gomock.Any(), evt, []domain.UserID{"alice", "bob"}).Return(nil).Times(1)

	// When an event is fanned out, both receive it
	NewEventFanout(log, nil, transport, time.Second, index).Fanout(context.Background(), evt)
}

func TestEventFanout_FailuresAreSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockITransport(ctrl)
	index := mocks.NewMockEventSink(ctrl)
	evt := event.NotificationCountChanged{UserID: "bob", Count: 2}

	// Given the index fails, the transport still gets the event
	index.EXPECT().Consume(gomock.Any(), evt).Return(fmt.Errorf("disk full"))
	transport.EXPECT().Publish(gomock.Any(), evt, []domain.UserID{"bob"}).Return(nil)

	NewEventFanout(slog.Default(), nil, transport, time.Second, index).Fanout(context.Background(), evt)
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockITransport(ctrl)
	evt := event.NotificationCountChanged{UserID: "bob", Count: 2}

	// Given a transport that hangs until cancelled
	transport.EXPECT().Publish(gomock.Any(), evt, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent, _ []domain.UserID) error {
			<-ctx.Done()
			return ctx.Err()
		})

	// When fanning out with a short timeout
	start := time.Now()
	NewEventFanout(slog.Default(), nil, transport, 20*time.Millisecond).Fanout(context.Background(), evt)

	// Then the worker moved on shortly after the deadline
	req.Less(time.Since(start), 500*time.Millisecond)
}

func TestEventFanout_Run_DrainsUntilCancelled(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockITransport(ctrl)
	events := make(chan event.DomainEvent, 2)
	delivered := make(chan struct{}, 2)

	transport.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, event.DomainEvent, []domain.UserID) error {
			delivered <- struct{}{}
			return nil
		}).Times(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- NewEventFanout(slog.Default(), events, transport, time.Second).Run(ctx) }()

	events <- event.NotificationCountChanged{UserID: "a", Count: 1}
	events <- event.NotificationCountChanged{UserID: "b", Count: 1}
	for range 2 {
		select {
		case <-delivered:
		case <-time.After(time.Second):
			req.Fail("event not delivered")
		}
	}

	cancel()
	req.NoError(<-done)
}
