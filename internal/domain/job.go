package domain

import "time"

// JobStatus represents the status of a triggered pipeline job.
// Values include JobStatusPending, JobStatusRunning, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobKind identifies which pipeline entry point a job runs.
type JobKind string

const (
	JobKindIngest         JobKind = "ingest"
	JobKindProcessOne     JobKind = "process_one"
	JobKindProcessPending JobKind = "process_pending"
	JobKindTagScan        JobKind = "tag_scan"
)

// PipelineJob is the explicit job-status record backing the trigger
// surface: external pollers look up completion by job id instead of
// scraping marker lines out of a shared log.
type PipelineJob struct {
	ID       string  `gorm:"type:text;primaryKey" json:"id"`
	Kind     JobKind `gorm:"type:text;not null;index:idx_jobs_kind" json:"kind"`
	TargetID string  `gorm:"type:text" json:"target_id,omitempty"`
	// IncludeErrors widens a process_pending run to retry errored
	// records as well; other kinds ignore it.
	IncludeErrors bool       `gorm:"default:false" json:"include_errors,omitempty"`
	Status        JobStatus  `gorm:"type:text;default:pending;index:idx_jobs_status" json:"status"`
	Applied       bool       `gorm:"default:false" json:"applied"`
	Message       string     `gorm:"type:text" json:"message,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for PipelineJob.
func (PipelineJob) TableName() string {
	return "pipeline_jobs"
}
