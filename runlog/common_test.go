package runlog

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/session"
	"github.com/hairizuan-noorazman/browser-steps/testutil"
)

// setupTestStore creates a test database and run store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, *GormStore) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &Run{}, &Step{})

	return db, NewGormStore(db, logger.NewTestLogger())
}

// createRun builds a stepwise run started at the given time.
func createRun(id string, startedAt time.Time) *Run {
	return &Run{
		ID:        id,
		ClientID:  "stepctl-test",
		Mode:      session.ModeStepwise,
		Actions:   3,
		StartedAt: startedAt,
	}
}
