package repository

import (
	"context"
	"errors"

	"github.com/tripcrew/tripchat/internal/domain"
)

var (
	// Validation failures on create.
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLong     = errors.New("message content is too long")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrReplyWrongRoom     = errors.New("reply must reference a message in the same room")

	// ErrMessageNotFound covers both a missing row and an edit by a
	// non-sender; callers must not distinguish the two.
	ErrMessageNotFound = errors.New("message not found")

	ErrRoomNotFound = errors.New("chat room not found")
)

// CreateMessageParams are the inputs for persisting a new message.
type CreateMessageParams struct {
	RoomID      string
	Sender      domain.Sender
	Content     string
	MessageType domain.MessageType
	ReplyToID   *string
}

// MessageRepository persists and retrieves chat rooms and messages.
type MessageRepository interface {
	// EnsureRoom is an idempotent get-or-create keyed by trip id.
	EnsureRoom(ctx context.Context, tripID string) (*domain.Room, error)

	// Create validates and persists a new message, returning it fully
	// serialized (reply preview resolved).
	Create(ctx context.Context, params CreateMessageParams) (*domain.Message, error)

	// Update edits a message constrained to (id, room, sender == editor).
	// A miss for any reason yields ErrMessageNotFound.
	Update(ctx context.Context, messageID, roomID, editorID, content string) (*domain.Message, error)

	// Recent returns at most limit messages for the room, ascending by
	// created_at with ties broken by id.
	Recent(ctx context.Context, roomID string, limit int) ([]*domain.Message, error)

	// Get fetches a single message by id.
	Get(ctx context.Context, messageID string) (*domain.Message, error)
}
