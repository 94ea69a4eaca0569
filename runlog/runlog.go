// Package runlog journals executed runs and their steps in a SQL database.
package runlog

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/browser-steps/session"
)

var (
	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunID is returned when a run has no id.
	ErrInvalidRunID = errors.New("run id is required")

	// ErrInvalidMode is returned for modes other than stepwise and oneshot.
	ErrInvalidMode = errors.New("invalid run mode")
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// IsValid checks if the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusRunning, StatusPassed, StatusFailed:
		return true
	}
	return false
}

// Payload is a raw JSON column.
type Payload json.RawMessage

func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return string(p), nil
}

func (p *Payload) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append(Payload(nil), v...)
	case string:
		*p = Payload(v)
	default:
		return fmt.Errorf("failed to scan Payload: unsupported type %T", value)
	}
	return nil
}

// MarshalJSON emits the payload verbatim, or null when empty.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// Run is one execution of an action list, stepwise or one-shot. Stepwise
// runs use the session id as their id.
type Run struct {
	ID        string     `json:"id" gorm:"type:varchar(64);primaryKey"`
	ClientID  string     `json:"client_id" gorm:"type:varchar(255);index:idx_runs_client_id"`
	Mode      string     `json:"mode" gorm:"type:varchar(16);not null"`
	Status    Status     `json:"status" gorm:"type:varchar(16);not null;default:'running'"`
	Actions   int        `json:"actions"`
	StartedAt time.Time  `json:"started_at" gorm:"index:idx_runs_started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Steps     []Step     `json:"steps,omitempty" gorm:"foreignKey:RunID"`
}

// TableName returns the table name for the Run model.
func (Run) TableName() string {
	return "runs"
}

// Validate checks the run before it is stored.
func (r *Run) Validate() error {
	if r.ID == "" {
		return ErrInvalidRunID
	}
	if r.Mode != session.ModeStepwise && r.Mode != session.ModeOneShot {
		return fmt.Errorf("%w: %q", ErrInvalidMode, r.Mode)
	}
	return nil
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Step is the recorded outcome of one action.
type Step struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID         string    `json:"run_id" gorm:"type:varchar(64);not null;index:idx_steps_run_id"`
	StepIndex     int       `json:"step_index"`
	ActionType    string    `json:"action_type" gorm:"type:varchar(32);not null"`
	OK            bool      `json:"ok"`
	Message       string    `json:"message" gorm:"type:text"`
	Data          Payload   `json:"data" gorm:"type:text"`
	BrowserClosed bool      `json:"browser_closed"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the table name for the Step model.
func (Step) TableName() string {
	return "run_steps"
}

// AutoMigrate creates or updates the journal tables. Used for SQLite; MySQL
// schemas are managed by the SQL migrations in the database package.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Run{}, &Step{})
}
