package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// MessageType represents the kind of chat message.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
	MessageTypeFile   MessageType = "file"
)

// Valid reports whether t is one of the declared message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeSystem, MessageTypeFile:
		return true
	}
	return false
}

// MaxReplyPreviewLength caps the content excerpt carried on a reply link.
const MaxReplyPreviewLength = 100

// Room is a chat room scoped to one trip. The subscriber set is runtime-only
// state and never persisted.
type Room struct {
	ID        string    `json:"id"`
	TripID    string    `json:"trip_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender identifies the user a message came from. Users are owned by an
// external subsystem; the identity is denormalized onto each message.
type Sender struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// ReplyPreview is the serialized form of a reply link: a weak reference. If
// the target message is gone the link degrades to null without invalidating
// the referencing message.
type ReplyPreview struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	SenderEmail string `json:"sender_email"`
}

// Timestamp is a UTC time.Time with a fixed-width fractional second on the
// wire, so the textual form sorts lexicographically in chronological order.
// time.Time's own encoding trims trailing zeros, which breaks that.
type Timestamp time.Time

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

func (t Timestamp) Time() time.Time { return time.Time(t) }

func (t Timestamp) Equal(u Timestamp) bool { return time.Time(t).Equal(time.Time(u)) }

func (t Timestamp) After(u Timestamp) bool { return time.Time(t).After(time.Time(u)) }

func (t Timestamp) Before(u Timestamp) bool { return time.Time(t).Before(time.Time(u)) }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(t).UTC().Format(timestampLayout))), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed.UTC())
	return nil
}

// Message is one persisted chat message in its wire shape.
type Message struct {
	ID          string        `json:"id"`
	ChatRoomID  string        `json:"chat_room_id"`
	Sender      Sender        `json:"sender"`
	Content     string        `json:"content"`
	MessageType MessageType   `json:"message_type"`
	ReplyTo     *ReplyPreview `json:"reply_to"`
	IsEdited    bool          `json:"is_edited"`
	CreatedAt   Timestamp     `json:"created_at"`
	UpdatedAt   Timestamp     `json:"updated_at"`
}

// RoomModel is the GORM model for the chat_rooms table.
type RoomModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	TripID    string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts the model to a domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:        m.ID,
		TripID:    m.TripID,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// MessageModel is the GORM model for the chat_messages table.
type MessageModel struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	ChatRoomID     string    `gorm:"type:varchar(36);not null;index:idx_messages_room_created,priority:1"`
	SenderID       string    `gorm:"type:varchar(36);not null;index"`
	SenderEmail    string    `gorm:"type:varchar(254);not null"`
	SenderUsername string    `gorm:"type:varchar(150)"`
	SenderFullName string    `gorm:"type:varchar(300)"`
	Content        string    `gorm:"type:text;not null"`
	MessageType    string    `gorm:"type:varchar(20);not null;default:'text'"`
	ReplyToID      *string   `gorm:"type:varchar(36);index"`
	IsEdited       bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_messages_room_created,priority:2"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (MessageModel) TableName() string {
	return "chat_messages"
}

// ToDomain converts the model to a domain Message. reply is the resolved
// reply target, nil when absent.
func (m *MessageModel) ToDomain(reply *MessageModel) *Message {
	msg := &Message{
		ID:         m.ID,
		ChatRoomID: m.ChatRoomID,
		Sender: Sender{
			ID:       m.SenderID,
			Email:    m.SenderEmail,
			Username: m.SenderUsername,
			FullName: m.SenderFullName,
		},
		Content:     m.Content,
		MessageType: MessageType(m.MessageType),
		IsEdited:    m.IsEdited,
		CreatedAt:   Timestamp(m.CreatedAt.UTC()),
		UpdatedAt:   Timestamp(m.UpdatedAt.UTC()),
	}
	if reply != nil {
		// Cap in runes, not bytes, so multibyte content is never cut
		// mid-character.
		content := reply.Content
		if runes := []rune(content); len(runes) > MaxReplyPreviewLength {
			content = string(runes[:MaxReplyPreviewLength])
		}
		msg.ReplyTo = &ReplyPreview{
			ID:          reply.ID,
			Content:     content,
			SenderEmail: reply.SenderEmail,
		}
	}
	return msg
}
