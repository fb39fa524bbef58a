package events

import (
	"context"
	"sync"
	"time"

	"github.com/stokcerdas/replenish/pkg/types"
)

// MemoryBus is an in-process EventBus. Handlers run synchronously on the
// publisher's goroutine, which keeps tests deterministic.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   int
}

type subscription struct {
	id      int
	handler func(evt types.Event)
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]subscription)}
}

// Publish delivers the event to every handler subscribed to its name.
func (b *MemoryBus) Publish(ctx context.Context, evt types.Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[evt.Name]))
	copy(subs, b.handlers[evt.Name])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(evt)
	}
	return nil
}

// Subscribe registers a handler and returns an unsubscribe function.
func (b *MemoryBus) Subscribe(name string, handler func(evt types.Event)) (func(), error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[name]
		for i, s := range subs {
			if s.id == id {
				b.handlers[name] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}, nil
}
