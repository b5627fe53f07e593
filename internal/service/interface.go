package service

import (
	"context"

	"github.com/tripcrew/tripchat/internal/domain"
	"github.com/tripcrew/tripchat/internal/fabric"
	"github.com/tripcrew/tripchat/internal/hub"
)

// ChatService processes inbound frames for a connection and forwards fabric
// events back out. All side effects go through the message store (persisted
// rows) or the fabric (broadcast); no other shared state is touched.
type ChatService interface {
	// History returns the recent messages sent to a client right after it
	// joins a room.
	History(ctx context.Context, roomID string) ([]*domain.Message, error)

	// HandleFrame processes one inbound frame. Client-level failures are
	// answered with an error frame; the connection stays open.
	HandleFrame(ctx context.Context, c *hub.Client, data []byte)

	// Deliver forwards one fabric event to the client, applying
	// delivery-time filtering (typing indicators never reach their
	// originating connection).
	Deliver(c *hub.Client, event *fabric.Event)
}
