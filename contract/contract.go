//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"io"
	"reflect"

	"chat-core/domain"
	"chat-core/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes one event. Sessions and permanent sinks (search index) implement it.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IEmitter hands committed events to the fan-out gateway. It must never block.
type IEmitter interface {
	Emit(events ...event.DomainEvent)
}

// IRegistry tracks the live sessions of each user on this instance.
type IRegistry interface {
	GetSinksForUsers(userIDs []domain.UserID) []EventSink
	Subscribe(userID domain.UserID, sessionID string, sink EventSink)
	Unsubscribe(userID domain.UserID, sessionID string) bool
	IsConnected(userID domain.UserID) bool
}

// ITransport delivers an event to the connected sessions of the targets.
// Retry and cross-channel ordering are the transport's concern.
type ITransport interface {
	Publish(ctx context.Context, e event.DomainEvent, targets []domain.UserID) error
}

// IPresence resolves display data for users. The core never stores these fields.
type IPresence interface {
	Resolve(ctx context.Context, userIDs []domain.UserID) (map[domain.UserID]domain.ChatMember, error)
	Upsert(ctx context.Context, member domain.ChatMember) error
	SetOnline(ctx context.Context, userID domain.UserID, online bool) error
}

// IUploader turns client supplied files into durable file ids.
type IUploader interface {
	Save(ctx context.Context, owner domain.UserID, filename string, r io.Reader) (string, error)
	Resolve(ctx context.Context, ref string) (string, error)
}
