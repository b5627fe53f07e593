package domain

import (
	"encoding/json"
	"fmt"
)

// Frame types from client.
const (
	FrameTypeChatMessage = "chat_message"
	FrameTypeEditMessage = "edit_message"
	FrameTypeTyping      = "typing"
)

// Frame types to client.
const (
	FrameTypeMessageHistory = "message_history"
	FrameTypeMessageEdited  = "message_edited"
	FrameTypeError          = "error"
)

// BaseFrame carries only the discriminating tag of a wire frame.
type BaseFrame struct {
	Type string `json:"type"`
}

// Client -> Server frames

type ChatMessageFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	ReplyTo     string `json:"reply_to,omitempty"`
	MessageType string `json:"message_type,omitempty"`
}

type EditMessageFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type TypingFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// ClientFrame is the closed set of frames a client may send. Exactly one of
// the pointers is non-nil after a successful DecodeClientFrame.
type ClientFrame struct {
	ChatMessage *ChatMessageFrame
	EditMessage *EditMessageFrame
	Typing      *TypingFrame
}

// ErrUnknownFrameType is returned for tags outside the declared set.
type ErrUnknownFrameType struct {
	Tag string
}

func (e *ErrUnknownFrameType) Error() string {
	return fmt.Sprintf("unknown frame type %q", e.Tag)
}

// DecodeClientFrame parses one inbound wire frame, dispatching on the closed
// set of declared kinds. Unknown tags are rejected explicitly.
func DecodeClientFrame(data []byte) (*ClientFrame, error) {
	var base BaseFrame
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON frame: %w", err)
	}

	switch base.Type {
	case FrameTypeChatMessage:
		var f ChatMessageFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("invalid chat_message frame: %w", err)
		}
		return &ClientFrame{ChatMessage: &f}, nil

	case FrameTypeEditMessage:
		var f EditMessageFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("invalid edit_message frame: %w", err)
		}
		return &ClientFrame{EditMessage: &f}, nil

	case FrameTypeTyping:
		var f TypingFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("invalid typing frame: %w", err)
		}
		return &ClientFrame{Typing: &f}, nil

	default:
		return nil, &ErrUnknownFrameType{Tag: base.Type}
	}
}

// Server -> Client frames

type MessageHistoryFrame struct {
	Type     string     `json:"type"`
	Messages []*Message `json:"messages"`
}

func NewMessageHistoryFrame(messages []*Message) *MessageHistoryFrame {
	if messages == nil {
		messages = []*Message{}
	}
	return &MessageHistoryFrame{Type: FrameTypeMessageHistory, Messages: messages}
}

// MessageFrame broadcasts a created or edited message. Type is
// chat_message or message_edited.
type MessageFrame struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

// TypingIndicatorFrame tells other room members someone is typing. It doubles
// as the fabric payload for typing events.
type TypingIndicatorFrame struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	IsTyping  bool   `json:"is_typing"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorFrame(message string) *ErrorFrame {
	return &ErrorFrame{Type: FrameTypeError, Message: message}
}
