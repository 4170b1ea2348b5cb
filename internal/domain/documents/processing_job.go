package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// ProcessingJob is one processing attempt for a Document. IdempotencyKey is the
// SHA-256 of the uploaded bytes, so identical uploads always land on the same row.
type ProcessingJob struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID     uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`

	Status     string `gorm:"column:status;not null;index" json:"status"`
	RetryCount int    `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	Error      string `gorm:"column:error;type:text" json:"error,omitempty"`

	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ProcessingJob) TableName() string { return "processing_job" }

func (j *ProcessingJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// InFlightOrDone is true for jobs a duplicate upload must reuse as-is.
func (j *ProcessingJob) InFlightOrDone() bool {
	switch j.Status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted:
		return true
	}
	return false
}
