package main

import "chat-core/domain/event"

type discardEmitter struct{}

func (discardEmitter) Emit(...event.DomainEvent) {}
