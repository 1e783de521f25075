package runtime

import (
	"context"
	"errors"
	"fmt"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
)

// LocalTransport delivers straight to the sessions connected to this instance.
// Used for single node deployments and by the broker relays on receive.
type LocalTransport struct {
	registry contract.IRegistry
}

func NewLocalTransport(registry contract.IRegistry) *LocalTransport {
	return &LocalTransport{registry: registry}
}

// Publish hands the event to every session of the targets. A failing session
// does not prevent delivery to the others.
func (t *LocalTransport) Publish(ctx context.Context, e event.DomainEvent, targets []domain.UserID) error {
	var errs []error
	for _, sink := range t.registry.GetSinksForUsers(targets) {
		if err := sink.Consume(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("deliver %s to %d sessions: %w", e.Type(), len(errs), errors.Join(errs...))
	}
	return nil
}
