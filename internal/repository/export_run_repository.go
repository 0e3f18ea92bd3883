package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vipul43/analytics-bridge/internal/models"
)

const maxListLimit = 500

var ErrRunNotFound = errors.New("export run not found")

type ExportRunRepository struct {
	db *gorm.DB
}

func NewExportRunRepository(db *gorm.DB) *ExportRunRepository {
	return &ExportRunRepository{db: db}
}

// Create inserts a new export run
func (r *ExportRunRepository) Create(ctx context.Context, run models.ExportRun) error {
	return r.db.WithContext(ctx).Create(&run).Error
}

// Finish records the outcome of a run
func (r *ExportRunRepository) Finish(ctx context.Context, run models.ExportRun) error {
	return r.db.WithContext(ctx).
		Model(&models.ExportRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"job_id":      run.JobID,
			"status":      run.Status,
			"row_count":   run.RowCount,
			"polls":       run.Polls,
			"last_error":  run.LastError,
			"finished_at": run.FinishedAt,
		}).Error
}

// GetByID retrieves a single run
func (r *ExportRunRepository) GetByID(ctx context.Context, id string) (*models.ExportRun, error) {
	var run models.ExportRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRecent returns the latest runs, newest first
func (r *ExportRunRepository) ListRecent(ctx context.Context, limit int) ([]models.ExportRun, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var runs []models.ExportRun
	result := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs)
	return runs, result.Error
}
