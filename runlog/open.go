package runlog

import (
	"fmt"

	"github.com/hairizuan-noorazman/browser-steps/database"
	"github.com/hairizuan-noorazman/browser-steps/logger"
)

// Open connects to the journal database and returns a store plus a
// function that closes the connection. SQLite schemas are created on open;
// MySQL schemas come from the migrate command.
func Open(cfg database.Config, log logger.Logger) (*GormStore, func() error, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.Driver != database.DriverMySQL {
		if err := AutoMigrate(db); err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to migrate journal: %w", err)
		}
	}
	return NewGormStore(db, log), sqlDB.Close, nil
}
