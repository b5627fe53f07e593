// Package access answers trip-membership questions for the chat subsystem.
// The collaborators table is owned by the trip subsystem; this package only
// reads it, once per connection at handshake time.
package access

import (
	"context"

	"gorm.io/gorm"

	"github.com/tripcrew/tripchat/pkg/log"
)

// Membership reports whether a user may enter a trip's chat room.
type Membership interface {
	IsMember(ctx context.Context, userID, tripID string) (bool, error)
}

// collaboratorRow mirrors the columns this package reads from the trip
// subsystem's collaborators table.
type collaboratorRow struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`
	TripID string `gorm:"type:varchar(36)"`
	UserID string `gorm:"type:varchar(36)"`
}

func (collaboratorRow) TableName() string {
	return "collaborators"
}

// GormMembership implements Membership against the collaborators table.
type GormMembership struct {
	db *gorm.DB
}

func NewGormMembership(db *gorm.DB) *GormMembership {
	return &GormMembership{db: db}
}

func (m *GormMembership) IsMember(ctx context.Context, userID, tripID string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&collaboratorRow{}).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Count(&count).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Str(log.FieldTripID, tripID).Msg("failed to check trip membership")
		return false, err
	}
	return count > 0, nil
}
