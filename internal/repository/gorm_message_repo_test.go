package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tripcrew/tripchat/internal/domain"
)

const testMaxContent = 10000

func newTestRepo(t *testing.T) *GormMessageRepository {
	t.Helper()

	// Named shared-cache DB so the pool's connections see the same data.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.RoomModel{}, &domain.MessageModel{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return NewGormMessageRepository(db, testMaxContent)
}

func alice() domain.Sender {
	return domain.Sender{ID: "u-alice", Email: "alice@example.com", Username: "alice", FullName: "Alice Doe"}
}

func bob() domain.Sender {
	return domain.Sender{ID: "u-bob", Email: "bob@example.com", Username: "bob", FullName: "Bob Roe"}
}

func mustCreate(t *testing.T, repo *GormMessageRepository, roomID string, sender domain.Sender, content string) *domain.Message {
	t.Helper()
	msg, err := repo.Create(context.Background(), CreateMessageParams{
		RoomID:  roomID,
		Sender:  sender,
		Content: content,
	})
	if err != nil {
		t.Fatalf("failed to create message: %v", err)
	}
	return msg
}

func TestEnsureRoomIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.EnsureRoom(ctx, "trip-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.EnsureRoom(ctx, "trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one room per trip, got %q and %q", first.ID, second.ID)
	}

	other, err := repo.EnsureRoom(ctx, "trip-2")
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID {
		t.Fatal("expected distinct rooms for distinct trips")
	}
}

func TestCreateTrimsContent(t *testing.T) {
	repo := newTestRepo(t)
	room, _ := repo.EnsureRoom(context.Background(), "trip-1")

	msg := mustCreate(t, repo, room.ID, alice(), "  hello world  \n")
	if msg.Content != "hello world" {
		t.Fatalf("expected trimmed content, got %q", msg.Content)
	}
	if msg.IsEdited {
		t.Fatal("new message must not be marked edited")
	}
	if msg.MessageType != domain.MessageTypeText {
		t.Fatalf("expected default message type text, got %q", msg.MessageType)
	}
	if msg.Sender != alice() {
		t.Fatalf("unexpected sender: %+v", msg.Sender)
	}
}

func TestCreateRejectsEmptyContent(t *testing.T) {
	repo := newTestRepo(t)
	room, _ := repo.EnsureRoom(context.Background(), "trip-1")

	_, err := repo.Create(context.Background(), CreateMessageParams{
		RoomID: room.ID, Sender: alice(), Content: "   \t\n ",
	})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestCreateRejectsOversizedContent(t *testing.T) {
	repo := newTestRepo(t)
	room, _ := repo.EnsureRoom(context.Background(), "trip-1")

	_, err := repo.Create(context.Background(), CreateMessageParams{
		RoomID: room.ID, Sender: alice(), Content: strings.Repeat("x", testMaxContent+1),
	})
	if !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}

	// The boundary itself is allowed.
	if _, err := repo.Create(context.Background(), CreateMessageParams{
		RoomID: room.ID, Sender: alice(), Content: strings.Repeat("x", testMaxContent),
	}); err != nil {
		t.Fatalf("expected max-length content to pass, got %v", err)
	}
}

func TestCreateRejectsInvalidMessageType(t *testing.T) {
	repo := newTestRepo(t)
	room, _ := repo.EnsureRoom(context.Background(), "trip-1")

	_, err := repo.Create(context.Background(), CreateMessageParams{
		RoomID: room.ID, Sender: alice(), Content: "hi", MessageType: "image",
	})
	if !errors.Is(err, ErrInvalidMessageType) {
		t.Fatalf("expected ErrInvalidMessageType, got %v", err)
	}
}

func TestCreateRejectsCrossRoomReply(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	roomA, _ := repo.EnsureRoom(ctx, "trip-a")
	roomB, _ := repo.EnsureRoom(ctx, "trip-b")

	target := mustCreate(t, repo, roomA.ID, alice(), "in room A")

	_, err := repo.Create(ctx, CreateMessageParams{
		RoomID: roomB.ID, Sender: bob(), Content: "reply from room B", ReplyToID: &target.ID,
	})
	if !errors.Is(err, ErrReplyWrongRoom) {
		t.Fatalf("expected ErrReplyWrongRoom, got %v", err)
	}
}

func TestCreateResolvesReplyPreview(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	room, _ := repo.EnsureRoom(ctx, "trip-1")

	target := mustCreate(t, repo, room.ID, alice(), strings.Repeat("a", 150))

	msg, err := repo.Create(ctx, CreateMessageParams{
		RoomID: room.ID, Sender: bob(), Content: "replying", ReplyToID: &target.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ReplyTo == nil {
		t.Fatal("expected reply preview")
	}
	if msg.ReplyTo.ID != target.ID {
		t.Fatalf("expected reply to %q, got %q", target.ID, msg.ReplyTo.ID)
	}
	if len(msg.ReplyTo.Content) != domain.MaxReplyPreviewLength {
		t.Fatalf("expected preview of %d chars, got %d", domain.MaxReplyPreviewLength, len(msg.ReplyTo.Content))
	}
	if msg.ReplyTo.SenderEmail != alice().Email {
		t.Fatalf("unexpected preview sender: %q", msg.ReplyTo.SenderEmail)
	}
}

func TestUpdateByNonSenderFails(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	room, _ := repo.EnsureRoom(ctx, "trip-1")

	msg := mustCreate(t, repo, room.ID, alice(), "original")

	_, err := repo.Update(ctx, msg.ID, room.ID, bob().ID, "hijacked")
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}

	// The content must be untouched.
	reloaded, err := repo.Get(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Content != "original" || reloaded.IsEdited {
		t.Fatalf("message mutated by rejected edit: %+v", reloaded)
	}
}

func TestUpdateMissingMessageFails(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	room, _ := repo.EnsureRoom(ctx, "trip-1")

	_, err := repo.Update(ctx, "no-such-id", room.ID, alice().ID, "whatever")
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestUpdateBySender(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	room, _ := repo.EnsureRoom(ctx, "trip-1")

	msg := mustCreate(t, repo, room.ID, alice(), "hi")
	time.Sleep(10 * time.Millisecond)

	edited, err := repo.Update(ctx, msg.ID, room.ID, alice().ID, "hi there")
	if err != nil {
		t.Fatal(err)
	}
	if edited.Content != "hi there" {
		t.Fatalf("expected updated content, got %q", edited.Content)
	}
	if !edited.IsEdited {
		t.Fatal("expected is_edited to be set")
	}
	if !edited.CreatedAt.Equal(msg.CreatedAt) {
		t.Fatalf("created_at must be immutable: %v != %v", edited.CreatedAt, msg.CreatedAt)
	}
	if !edited.UpdatedAt.After(msg.UpdatedAt) {
		t.Fatalf("expected updated_at to advance: %v <= %v", edited.UpdatedAt, msg.UpdatedAt)
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	room, _ := repo.EnsureRoom(ctx, "trip-1")

	contents := []string{"one", "two", "three", "four", "five"}
	for _, c := range contents {
		mustCreate(t, repo, room.ID, alice(), c)
		time.Sleep(2 * time.Millisecond)
	}

	messages, err := repo.Recent(ctx, room.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	// Newest three, oldest first.
	for i, want := range []string{"three", "four", "five"} {
		if messages[i].Content != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, messages[i].Content)
		}
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatal("messages out of chronological order")
		}
	}

	// Idempotent absent intervening writes.
	again, err := repo.Recent(ctx, room.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range messages {
		if messages[i].ID != again[i].ID {
			t.Fatal("repeated reads returned different pages")
		}
	}
}

func TestRecentEmptyRoom(t *testing.T) {
	repo := newTestRepo(t)
	room, _ := repo.EnsureRoom(context.Background(), "trip-1")

	messages, err := repo.Recent(context.Background(), room.ID, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(messages))
	}
}
