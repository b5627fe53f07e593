package access

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestMembership(t *testing.T) (*GormMembership, *gorm.DB) {
	t.Helper()

	// Named shared-cache DB so the pool's connections see the same data.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&collaboratorRow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return NewGormMembership(db), db
}

func TestIsMember(t *testing.T) {
	m, db := newTestMembership(t)
	ctx := context.Background()

	db.Create(&collaboratorRow{ID: "c1", TripID: "trip-1", UserID: "u-alice"})

	ok, err := m.IsMember(ctx, "u-alice", "trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected collaborator to be a member")
	}

	ok, err = m.IsMember(ctx, "u-bob", "trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected non-collaborator to be rejected")
	}

	ok, err = m.IsMember(ctx, "u-alice", "trip-2")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("membership must be scoped to the trip")
	}
}
