package models

import "time"

// Export run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ExportRun records the outcome of one export request.
// The platform-side job itself is not tracked here, only what the caller asked for and how it ended.
type ExportRun struct {
	ID         string     `gorm:"column:id;primaryKey" json:"id"`
	View       string     `gorm:"column:view;index" json:"view"`
	Config     string     `gorm:"column:config" json:"config"`
	JobID      *string    `gorm:"column:job_id" json:"jobId,omitempty"`
	Status     string     `gorm:"column:status;index" json:"status"`
	RowCount   int        `gorm:"column:row_count" json:"rowCount"`
	Polls      int        `gorm:"column:polls" json:"polls"`
	LastError  *string    `gorm:"column:last_error" json:"lastError,omitempty"`
	StartedAt  time.Time  `gorm:"column:started_at" json:"startedAt"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finishedAt,omitempty"`
}

// TableName specifies the table name for GORM
func (ExportRun) TableName() string {
	return "export_run"
}
