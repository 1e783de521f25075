package event

import (
	"encoding/json"
	"fmt"

	"chat-core/domain"
	"chat-core/errors"
)

// Envelope is the wire shape shared by websocket clients and broker relays.
type Envelope struct {
	Type    Type            `json:"type"`
	Targets []domain.UserID `json:"targets,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(e DomainEvent, targets []domain.UserID) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: e.Type(), Targets: targets, Payload: payload})
}

// Decode rebuilds the typed event and the targets it was published for.
func Decode(data []byte) (DomainEvent, []domain.UserID, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, nil, err
	}
	var (
		evt DomainEvent
		err error
	)
	switch envelope.Type {
	case MessageSentType:
		evt, err = decode[MessageSent](envelope.Payload)
	case MessageSeenType:
		evt, err = decode[MessageSeen](envelope.Payload)
	case NotificationCountChangedType:
		evt, err = decode[NotificationCountChanged](envelope.Payload)
	case MemberAddedType:
		evt, err = decode[MemberAdded](envelope.Payload)
	case MemberRemovedType:
		evt, err = decode[MemberRemoved](envelope.Payload)
	case ChatDeletedType:
		evt, err = decode[ChatDeleted](envelope.Payload)
	default:
		return nil, nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, envelope.Type)
	}
	if err != nil {
		return nil, nil, err
	}
	return evt, envelope.Targets, nil
}

func decode[T DomainEvent](raw json.RawMessage) (DomainEvent, error) {
	var evt T
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	return evt, nil
}
