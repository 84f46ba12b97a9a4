package repository

import (
	"context"
	"time"

	"github.com/tmn/memelet/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles pipeline job status records.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job in pending state.
func (r *JobRepository) Create(ctx context.Context, job *domain.PipelineJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.PipelineJob, error) {
	var job domain.PipelineJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkRunning transitions a job to running and stamps its start time.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.PipelineJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"started_at": &now,
			"updated_at": now,
		}).Error
}

// MarkCompleted finishes a job, recording whether it applied any change
// and a short human-readable summary.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, applied bool, message string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.PipelineJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"applied":      applied,
			"message":      message,
			"completed_at": &now,
			"updated_at":   now,
		}).Error
}

// MarkFailed finishes a job in failed state with an error summary.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, message string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&domain.PipelineJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"message":      message,
			"completed_at": &now,
			"updated_at":   now,
		}).Error
}

// ListRecent retrieves the most recently created jobs.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.PipelineJob, error) {
	var jobs []domain.PipelineJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
