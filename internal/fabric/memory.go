package fabric

import (
	"context"
	"errors"
	"sync"

	"github.com/tripcrew/tripchat/pkg/log"
)

// DefaultBufferSize is the per-subscriber delivery buffer used when no size
// is configured.
const DefaultBufferSize = 256

var ErrFabricClosed = errors.New("fabric is closed")

// MemoryFabric is the single-process Fabric: an in-memory fan-out with one
// bounded buffer per subscriber. When a subscriber falls behind, the oldest
// buffered event is dropped to make room; a reconnecting client recovers
// chat state from message history, not from this buffer.
type MemoryFabric struct {
	mu         sync.RWMutex
	rooms      map[string]map[*Subscription]struct{}
	bufferSize int
	closed     bool
}

// NewMemoryFabric creates an in-memory fabric.
func NewMemoryFabric(bufferSize int) *MemoryFabric {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryFabric{
		rooms:      make(map[string]map[*Subscription]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe adds a subscriber to a room channel.
func (f *MemoryFabric) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFabricClosed
	}

	sub := &Subscription{ch: make(chan *Event, f.bufferSize)}
	sub.cancel = func() { f.remove(roomID, sub) }

	if _, ok := f.rooms[roomID]; !ok {
		f.rooms[roomID] = make(map[*Subscription]struct{})
	}
	f.rooms[roomID][sub] = struct{}{}

	return sub, nil
}

// Publish fans the event out to every current subscriber of the room.
// Events published by a single caller arrive at each subscriber in publish
// order.
func (f *MemoryFabric) Publish(ctx context.Context, roomID string, event *Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrFabricClosed
	}

	for sub := range f.rooms[roomID] {
		f.deliver(roomID, sub, event)
	}
	return nil
}

// Close drops every subscription.
func (f *MemoryFabric) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	for _, subs := range f.rooms {
		for sub := range subs {
			close(sub.ch)
		}
	}
	f.rooms = make(map[string]map[*Subscription]struct{})
	return nil
}

// deliver enqueues the event, evicting the oldest buffered event if the
// subscriber is full. Called with f.mu held (read side).
func (f *MemoryFabric) deliver(roomID string, sub *Subscription, event *Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	// Buffer full: drop the oldest buffered event, then retry once.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- event:
	default:
		log.L().Warn().Str(log.FieldRoomID, roomID).Str("event_type", event.Type).Msg("fabric subscriber buffer full, event dropped")
	}
}

// remove detaches a subscription. The delivery channel is closed under the
// write lock, so no publisher can still be sending on it.
func (f *MemoryFabric) remove(roomID string, sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	subs, ok := f.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	if len(subs) == 0 {
		delete(f.rooms, roomID)
	}
	close(sub.ch)
}

// subscriberCount reports the number of live subscriptions for a room.
func (f *MemoryFabric) subscriberCount(roomID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms[roomID])
}
