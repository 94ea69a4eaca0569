package runlog

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/browser-steps/logger"
)

// GormStore implements Store on a GORM connection (MySQL or SQLite).
type GormStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormStore creates a new GORM-backed run store.
func NewGormStore(db *gorm.DB, log logger.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: log,
	}
}

// CreateRun inserts a new run. An empty status becomes running.
func (s *GormStore) CreateRun(ctx context.Context, run *Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	if err := s.db.WithContext(ctx).Omit("Steps").Create(run).Error; err != nil {
		s.logger.Error(ctx, "failed to create run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": run.ID,
		})
		return err
	}
	return nil
}

// AddStep appends a step to its run.
func (s *GormStore) AddStep(ctx context.Context, step *Step) error {
	if step.RunID == "" {
		return ErrInvalidRunID
	}
	if err := s.db.WithContext(ctx).Create(step).Error; err != nil {
		s.logger.Error(ctx, "failed to add step", map[string]interface{}{
			"error":  err.Error(),
			"run_id": step.RunID,
			"index":  step.StepIndex,
		})
		return err
	}
	return nil
}

// FinishRun sets the final status and end time of a run.
func (s *GormStore) FinishRun(ctx context.Context, id string, status Status, endedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   status,
			"ended_at": endedAt,
		})
	if result.Error != nil {
		s.logger.Error(ctx, "failed to finish run", map[string]interface{}{
			"error":  result.Error.Error(),
			"run_id": id,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run with its steps in index order.
func (s *GormStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_index ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs, newest first, without steps.
func (s *GormStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	var runs []*Run
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error
	if err != nil {
		s.logger.Error(ctx, "failed to list runs", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	return runs, nil
}

// CountRuns returns the number of journaled runs.
func (s *GormStore) CountRuns(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Run{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
