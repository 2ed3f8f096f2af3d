// pkg/event/event.go
// Package event provides a small publish-subscribe bus used to notify hosts
// about queue state changes without coupling the queue to any UI.
package event

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Wildcard subscribes a handler to every topic.
const Wildcard = "*"

// Handler is a function that handles an event.
type Handler func(ctx context.Context, data any)

// EventBus defines the interface for an event system.
type EventBus interface {
	Subscribe(topic string, handler Handler) (unsubscribe func())
	Publish(ctx context.Context, topic string, data any)
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine. Handlers must not block for long; a handler that
// needs to do slow work should hand the event off to its own goroutine.
type Bus struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[string][]subscription
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]subscription),
	}
}

// Subscribe adds a handler for a specific topic, or for every topic when
// topic is Wildcard. The returned function removes the handler; calling it
// more than once is harmless.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[topic] = append(b.subscribers[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[topic]) == 0 {
		delete(b.subscribers, topic)
	}
}

// Publish calls every handler subscribed to topic, then every wildcard
// handler. A panicking handler is isolated from the publisher and from the
// remaining handlers.
func (b *Bus) Publish(ctx context.Context, topic string, data any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[topic])+len(b.subscribers[Wildcard]))
	for _, s := range b.subscribers[topic] {
		handlers = append(handlers, s.handler)
	}
	if topic != Wildcard {
		for _, s := range b.subscribers[Wildcard] {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		invoke(ctx, handler, data)
	}
}

func invoke(ctx context.Context, handler Handler, data any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("component", "event").
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	handler(ctx, data)
}

// SubscriberCount returns the number of handlers registered for topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}
