package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tripcrew/tripchat/internal/config"
	"github.com/tripcrew/tripchat/internal/domain"
	"github.com/tripcrew/tripchat/internal/fabric"
	"github.com/tripcrew/tripchat/internal/hub"
	"github.com/tripcrew/tripchat/internal/repository"
	"github.com/tripcrew/tripchat/pkg/log"
)

type chatService struct {
	repo         repository.MessageRepository
	fab          fabric.Fabric
	historyLimit int
	maxContent   int
}

func NewChatService(repo repository.MessageRepository, fab fabric.Fabric, cfg config.ChatConfig) ChatService {
	return &chatService{
		repo:         repo,
		fab:          fab,
		historyLimit: cfg.HistoryLimit,
		maxContent:   cfg.MaxContentLength,
	}
}

func (s *chatService) History(ctx context.Context, roomID string) ([]*domain.Message, error) {
	return s.repo.Recent(ctx, roomID, s.historyLimit)
}

func (s *chatService) HandleFrame(ctx context.Context, c *hub.Client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Error().Interface("panic", r).Str(log.FieldClientID, c.ID).Msg("panic while processing frame")
			c.SendFrame(domain.NewErrorFrame("An error occurred processing your message"))
		}
	}()

	frame, err := domain.DecodeClientFrame(data)
	if err != nil {
		var unknown *domain.ErrUnknownFrameType
		if errors.As(err, &unknown) {
			c.SendFrame(domain.NewErrorFrame("Unknown message type"))
		} else {
			c.SendFrame(domain.NewErrorFrame("Invalid JSON format"))
		}
		return
	}

	switch {
	case frame.ChatMessage != nil:
		s.handleChatMessage(ctx, c, frame.ChatMessage)
	case frame.EditMessage != nil:
		s.handleEditMessage(ctx, c, frame.EditMessage)
	case frame.Typing != nil:
		s.handleTyping(ctx, c, frame.Typing)
	}
}

func (s *chatService) handleChatMessage(ctx context.Context, c *hub.Client, f *domain.ChatMessageFrame) {
	l := log.Ctx(ctx)

	content := strings.TrimSpace(f.Content)
	if content == "" {
		c.SendFrame(domain.NewErrorFrame("Message content cannot be empty"))
		return
	}
	if len([]rune(content)) > s.maxContent {
		c.SendFrame(domain.NewErrorFrame(fmt.Sprintf("Message is too long (max %d characters)", s.maxContent)))
		return
	}

	// A reply link is a weak reference: when the target is missing or in a
	// different room, the send goes through without it.
	var replyTo *string
	if f.ReplyTo != "" {
		target, err := s.repo.Get(ctx, f.ReplyTo)
		if err != nil || target.ChatRoomID != c.RoomID {
			l.Warn().Str(log.FieldMessageID, f.ReplyTo).Str(log.FieldRoomID, c.RoomID).Msg("reply target not found, sending without reply link")
		} else {
			replyTo = &f.ReplyTo
		}
	}

	msg, err := s.repo.Create(ctx, repository.CreateMessageParams{
		RoomID:      c.RoomID,
		Sender:      domain.Sender(c.Identity),
		Content:     content,
		MessageType: domain.MessageType(f.MessageType),
		ReplyToID:   replyTo,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidMessageType):
			c.SendFrame(domain.NewErrorFrame("Invalid message type"))
		default:
			l.Error().Err(err).Str(log.FieldRoomID, c.RoomID).Msg("failed to save message")
			c.SendFrame(domain.NewErrorFrame("Failed to save message"))
		}
		return
	}

	s.publishMessage(ctx, c, fabric.EventChatMessage, msg)
}

func (s *chatService) handleEditMessage(ctx context.Context, c *hub.Client, f *domain.EditMessageFrame) {
	l := log.Ctx(ctx)

	if f.MessageID == "" {
		c.SendFrame(domain.NewErrorFrame("message_id is required"))
		return
	}

	content := strings.TrimSpace(f.Content)
	if content == "" {
		c.SendFrame(domain.NewErrorFrame("Message content cannot be empty"))
		return
	}
	if len([]rune(content)) > s.maxContent {
		c.SendFrame(domain.NewErrorFrame(fmt.Sprintf("Message is too long (max %d characters)", s.maxContent)))
		return
	}

	msg, err := s.repo.Update(ctx, f.MessageID, c.RoomID, c.Identity.ID, content)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			// One generic answer for "missing" and "not yours": existence
			// must not leak.
			c.SendFrame(domain.NewErrorFrame("Message not found or you do not have permission to edit it"))
			return
		}
		l.Error().Err(err).Str(log.FieldMessageID, f.MessageID).Msg("failed to update message")
		c.SendFrame(domain.NewErrorFrame("Failed to update message"))
		return
	}

	s.publishMessage(ctx, c, fabric.EventMessageEdited, msg)
}

func (s *chatService) handleTyping(ctx context.Context, c *hub.Client, f *domain.TypingFrame) {
	payload := domain.TypingIndicatorFrame{
		Type:      domain.FrameTypeTyping,
		UserID:    c.Identity.ID,
		UserEmail: c.Identity.Email,
		IsTyping:  f.IsTyping,
	}

	event, err := fabric.NewEvent(fabric.EventTypingIndicator, c.RoomID, c.ID, payload)
	if err != nil {
		return
	}

	// Typing is lossy by design: a failed publish degrades silently.
	if err := s.fab.Publish(ctx, c.RoomID, event); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, c.RoomID).Msg("failed to publish typing indicator")
	}
}

func (s *chatService) publishMessage(ctx context.Context, c *hub.Client, eventType string, msg *domain.Message) {
	l := log.Ctx(ctx)

	event, err := fabric.NewEvent(eventType, c.RoomID, c.ID, msg)
	if err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to build fabric event")
		return
	}
	if err := s.fab.Publish(ctx, c.RoomID, event); err != nil {
		// The message is persisted; subscribers that miss the broadcast
		// recover it from history on reconnect.
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Str(log.FieldRoomID, c.RoomID).Msg("failed to publish message event")
	}
}

func (s *chatService) Deliver(c *hub.Client, event *fabric.Event) {
	switch event.Type {
	case fabric.EventChatMessage, fabric.EventMessageEdited:
		var msg domain.Message
		if err := event.UnmarshalPayload(&msg); err != nil {
			log.L().Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("dropping malformed message event")
			return
		}
		frameType := domain.FrameTypeChatMessage
		if event.Type == fabric.EventMessageEdited {
			frameType = domain.FrameTypeMessageEdited
		}
		c.SendFrame(&domain.MessageFrame{Type: frameType, Message: &msg})

	case fabric.EventTypingIndicator:
		// Never echo a typing indicator back to the connection it came
		// from; other connections of the same user still get it.
		if event.Origin == c.ID {
			return
		}
		var indicator domain.TypingIndicatorFrame
		if err := event.UnmarshalPayload(&indicator); err != nil {
			return
		}
		indicator.Type = domain.FrameTypeTyping
		c.SendFrame(&indicator)

	default:
		log.L().Debug().Str("event_type", event.Type).Msg("ignoring unknown fabric event")
	}
}
