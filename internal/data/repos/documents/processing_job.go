package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type ProcessingJobRepo interface {
	Create(dbc dbctx.Context, job *types.ProcessingJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingJob, error)
	GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.ProcessingJob, error)
	LockForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingJob, error)
	ClaimNextPending(dbc dbctx.Context, staleLock time.Duration) (*types.ProcessingJob, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type processingJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessingJobRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingJobRepo {
	return &processingJobRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingJobRepo"),
	}
}

func (r *processingJobRepo) Create(dbc dbctx.Context, job *types.ProcessingJob) error {
	if job == nil {
		return nil
	}
	return dbc.DB(r.db).Create(job).Error
}

func (r *processingJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("id = ?", id))
}

func (r *processingJobRepo) GetByIdempotencyKey(dbc dbctx.Context, key string) (*types.ProcessingJob, error) {
	if key == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("idempotency_key = ?", key))
}

// LockForUpdate takes a row lock for the rest of the caller's transaction.
// dbc.Tx must be set for the lock to mean anything.
func (r *processingJobRepo) LockForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	if dbc.Tx == nil {
		r.log.Warn("LockForUpdate called outside a transaction", "job_id", id)
	}
	return r.first(dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

// ClaimNextPending marks the oldest unclaimed PENDING job as locked and returns it.
// A lock older than staleLock is considered abandoned and may be reclaimed.
func (r *processingJobRepo) ClaimNextPending(dbc dbctx.Context, staleLock time.Duration) (*types.ProcessingJob, error) {
	now := time.Now()
	staleCutoff := now.Add(-staleLock)
	var claimed *types.ProcessingJob
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var job types.ProcessingJob
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND (locked_at IS NULL OR locked_at < ?)", types.JobStatusPending, staleCutoff).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.ProcessingJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"locked_at":  now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.LockedAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *processingJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).
		Model(&types.ProcessingJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *processingJobRepo) first(q *gorm.DB) (*types.ProcessingJob, error) {
	var job types.ProcessingJob
	err := q.First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
