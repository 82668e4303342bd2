package events

import (
	"context"
	"sync"

	"github.com/aviaryhq/aviary-go/internal/logger"
)

// Bus implements Publisher with in-process fan-out. The simulator is a
// single-node service, so no external broker is involved.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

type subscription struct {
	ch    chan *Event
	types map[EventType]bool // empty means all
}

// NewBus creates a new in-process event bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish delivers the event to every matching subscriber. Subscribers with
// full buffers have the event dropped rather than blocking the publisher.
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for _, sub := range b.subs {
		if len(sub.types) > 0 && !sub.types[event.Type] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			logger.Warn().
				Str("event_type", string(event.Type)).
				Msg("subscriber buffer full, dropping event")
		}
	}

	return nil
}

// Subscribe returns a channel receiving events of the given types. With no
// types, every event is delivered. The channel closes when ctx is cancelled
// or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error) {
	types := make(map[EventType]bool, len(eventTypes))
	for _, et := range eventTypes {
		types[et] = true
	}

	sub := &subscription{
		ch:    make(chan *Event, 100),
		types: types,
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
		b.mu.Unlock()
	}()

	return sub.ch, nil
}

// SubscribeAll subscribes to every event type.
func (b *Bus) SubscribeAll(ctx context.Context) (<-chan *Event, error) {
	return b.Subscribe(ctx)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}

	return nil
}
