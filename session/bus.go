// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"sort"
	"sync"
)

// Bus is the global activity fan-out: fleet-wide events (session
// started, upload completed, ...) that any connection may subscribe to
// regardless of session. Unlike a Process it keeps no history —
// activity subscribers only see what happens after they join.
type Bus struct {
	mu             sync.Mutex
	subscribers    map[int]func(Event)
	nextSubscriber int
}

// NewBus returns an empty activity bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]func(Event))}
}

// Subscribe registers a handler for future activity events. The
// returned function unregisters it; idempotent.
func (b *Bus) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	id := b.nextSubscriber
	b.nextSubscriber++
	b.subscribers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers an event to every subscriber in registration order.
// Handlers run outside the bus lock.
func (b *Bus) Publish(eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	event := Event{Type: eventType, Data: payload}

	b.mu.Lock()
	ids := make([]int, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subscribers[id])
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}
