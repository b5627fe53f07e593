package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tripcrew/tripchat/internal/domain"
	"github.com/tripcrew/tripchat/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db         *gorm.DB
	maxContent int
}

// NewGormMessageRepository creates a new GORM-based message repository.
// maxContent caps message content length in characters.
func NewGormMessageRepository(db *gorm.DB, maxContent int) *GormMessageRepository {
	return &GormMessageRepository{db: db, maxContent: maxContent}
}

// EnsureRoom gets or creates the room for a trip. The unique index on
// trip_id keeps concurrent callers from creating duplicates.
func (r *GormMessageRepository) EnsureRoom(ctx context.Context, tripID string) (*domain.Room, error) {
	l := log.Ctx(ctx)

	model := domain.RoomModel{ID: uuid.New().String(), TripID: tripID}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trip_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldTripID, tripID).Msg("failed to ensure chat room")
		return nil, result.Error
	}

	// Re-read so the lost side of a conflict still gets the winning row.
	var existing domain.RoomModel
	if err := r.db.WithContext(ctx).First(&existing, "trip_id = ?", tripID).Error; err != nil {
		l.Error().Err(err).Str(log.FieldTripID, tripID).Msg("failed to load chat room")
		return nil, err
	}

	return existing.ToDomain(), nil
}

// Create validates and persists a new message.
func (r *GormMessageRepository) Create(ctx context.Context, params CreateMessageParams) (*domain.Message, error) {
	l := log.Ctx(ctx)

	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len([]rune(content)) > r.maxContent {
		return nil, ErrContentTooLong
	}

	msgType := params.MessageType
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, ErrInvalidMessageType
	}

	var reply *domain.MessageModel
	if params.ReplyToID != nil && *params.ReplyToID != "" {
		var target domain.MessageModel
		err := r.db.WithContext(ctx).First(&target, "id = ?", *params.ReplyToID).Error
		if err != nil || target.ChatRoomID != params.RoomID {
			return nil, ErrReplyWrongRoom
		}
		reply = &target
	}

	model := domain.MessageModel{
		ID:             uuid.New().String(),
		ChatRoomID:     params.RoomID,
		SenderID:       params.Sender.ID,
		SenderEmail:    params.Sender.Email,
		SenderUsername: params.Sender.Username,
		SenderFullName: params.Sender.FullName,
		Content:        content,
		MessageType:    string(msgType),
	}
	if reply != nil {
		model.ReplyToID = &reply.ID
	}

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, params.RoomID).Msg("failed to create message in db")
		return nil, err
	}

	l.Debug().Str(log.FieldMessageID, model.ID).Str(log.FieldRoomID, params.RoomID).Msg("message created in db")
	return model.ToDomain(reply), nil
}

// Update edits a message's content. The WHERE clause carries the full
// (id, room, sender) constraint so a miss never reveals whether the
// message exists or belongs to someone else.
func (r *GormMessageRepository) Update(ctx context.Context, messageID, roomID, editorID, content string) (*domain.Message, error) {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ? AND chat_room_id = ? AND sender_id = ?", messageID, roomID, editorID).
		Updates(map[string]interface{}{
			"content":   content,
			"is_edited": true,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldMessageID, messageID).Msg("failed to update message in db")
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrMessageNotFound
	}

	var model domain.MessageModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", messageID).Error; err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to reload edited message")
		return nil, err
	}

	return model.ToDomain(r.loadReply(ctx, model.ReplyToID)), nil
}

// Recent returns the newest limit messages for a room in ascending order.
func (r *GormMessageRepository) Recent(ctx context.Context, roomID string, limit int) ([]*domain.Message, error) {
	l := log.Ctx(ctx)

	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load recent messages")
		return nil, err
	}

	replies := r.loadReplies(ctx, models)

	// Newest-first from the query; flip to chronological order.
	messages := make([]*domain.Message, len(models))
	for i := range models {
		m := &models[i]
		messages[len(models)-1-i] = m.ToDomain(replies[m.ID])
	}

	return messages, nil
}

// Get fetches one message by id.
func (r *GormMessageRepository) Get(ctx context.Context, messageID string) (*domain.Message, error) {
	var model domain.MessageModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", messageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return model.ToDomain(r.loadReply(ctx, model.ReplyToID)), nil
}

// loadReply resolves a reply target, nil when absent or already removed.
func (r *GormMessageRepository) loadReply(ctx context.Context, replyToID *string) *domain.MessageModel {
	if replyToID == nil {
		return nil
	}
	var reply domain.MessageModel
	if err := r.db.WithContext(ctx).First(&reply, "id = ?", *replyToID).Error; err != nil {
		return nil
	}
	return &reply
}

// loadReplies batch-resolves reply targets for a page of messages, keyed by
// the referencing message id.
func (r *GormMessageRepository) loadReplies(ctx context.Context, models []domain.MessageModel) map[string]*domain.MessageModel {
	ids := make([]string, 0, len(models))
	for i := range models {
		if models[i].ReplyToID != nil {
			ids = append(ids, *models[i].ReplyToID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var targets []domain.MessageModel
	if err := r.db.WithContext(ctx).Find(&targets, "id IN ?", ids).Error; err != nil {
		return nil
	}

	byID := make(map[string]*domain.MessageModel, len(targets))
	for i := range targets {
		byID[targets[i].ID] = &targets[i]
	}

	out := make(map[string]*domain.MessageModel, len(models))
	for i := range models {
		if models[i].ReplyToID != nil {
			out[models[i].ID] = byID[*models[i].ReplyToID]
		}
	}
	return out
}
