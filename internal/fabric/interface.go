// Package fabric is the pub/sub delivery substrate for chat rooms. A Fabric
// instance is constructed once per process and injected; rooms are addressed
// by id and every event published to a room reaches each live subscription
// at least once, in per-publisher order.
package fabric

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event types carried on the fabric.
const (
	EventChatMessage     = "chat_message"
	EventMessageEdited   = "message_edited"
	EventTypingIndicator = "typing_indicator"
)

// Event represents a message published to a room channel. Origin is the id
// of the originating connection, used for delivery-time filtering of
// typing indicators.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Origin    string          `json:"origin,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType, roomID, origin string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		RoomID:    roomID,
		Origin:    origin,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload unmarshals the event payload into the given struct.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Subscription is one connection's membership in a room channel. Events()
// yields delivered events until Close, which releases exactly this
// subscription and is safe to call more than once.
type Subscription struct {
	ch     chan *Event
	cancel func()
	once   sync.Once
}

// Events returns the delivery channel. It is closed after Close.
func (s *Subscription) Events() <-chan *Event {
	return s.ch
}

// Close releases the subscription.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Fabric delivers published events to all subscribers of a room, regardless
// of which process holds the subscription.
type Fabric interface {
	Subscribe(ctx context.Context, roomID string) (*Subscription, error)
	Publish(ctx context.Context, roomID string, event *Event) error
	Close() error
}
