package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/services"
)

/*
Context is the execution handle for one processing run of a document.

It owns every status write the pipeline makes:
  - Progress moves the document between processing stages and records the
    {current_stage, completed_units, total_units} snapshot pollers read.
  - Fail and Succeed are the only terminal transitions. Both update the
    document and its job in one transaction.

Stages never write document or job status directly.
*/
type Context struct {
	Ctx      context.Context
	DB       *gorm.DB
	Job      *domain.ProcessingJob
	Document *domain.Document
	Repos    *repos.Repos
	Notify   services.Notifier
}

// Progress is the stage-scoped snapshot stored on Document.progress.
type Progress struct {
	CurrentStage   string `json:"current_stage"`
	CompletedUnits int    `json:"completed_units"`
	TotalUnits     int    `json:"total_units"`
}

func NewContext(ctx context.Context, db *gorm.DB, job *domain.ProcessingJob, doc *domain.Document, r *repos.Repos, notify services.Notifier) *Context {
	if notify == nil {
		notify = services.NewNopNotifier()
	}
	return &Context{
		Ctx:      ctx,
		DB:       db,
		Job:      job,
		Document: doc,
		Repos:    r,
		Notify:   notify,
	}
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Progress persists the document's stage and unit counters and pushes the
// new status to subscribers.
func (c *Context) Progress(stage string, completed, total int) error {
	if c == nil || c.Document == nil {
		return nil
	}
	raw, err := json.Marshal(Progress{
		CurrentStage:   stage,
		CompletedUnits: completed,
		TotalUnits:     total,
	})
	if err != nil {
		return err
	}
	now := time.Now()
	if err := c.Repos.Documents.UpdateFields(dbctx.Context{Ctx: c.ctx()}, c.Document.ID, map[string]interface{}{
		"status":     stage,
		"progress":   datatypes.JSON(raw),
		"updated_at": now,
	}); err != nil {
		return err
	}
	c.Document.Status = stage
	c.Document.Progress = datatypes.JSON(raw)
	c.Document.UpdatedAt = now
	c.Notify.DocumentStatus(c.ctx(), c.Document)
	return nil
}

// Fail marks the document and job FAILED together. userMsg is what the
// status surface shows; cause is kept on the job for operators.
func (c *Context) Fail(stage string, userMsg string, cause error) error {
	if c == nil || c.Document == nil || c.Job == nil {
		return nil
	}
	now := time.Now()
	jobErr := userMsg
	if cause != nil {
		jobErr = stage + ": " + cause.Error()
	}
	// Failure is recorded even when the run context is already cancelled.
	ctx := context.WithoutCancel(c.ctx())
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := c.Repos.Documents.UpdateFields(dbc, c.Document.ID, map[string]interface{}{
			"status":     domain.DocumentStatusFailed,
			"error":      userMsg,
			"updated_at": now,
		}); err != nil {
			return err
		}
		return c.Repos.ProcessingJobs.UpdateFields(dbc, c.Job.ID, map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"error":        jobErr,
			"retry_count":  gorm.Expr("retry_count + 1"),
			"completed_at": now,
			"locked_at":    nil,
			"updated_at":   now,
		})
	})
	if err != nil {
		return err
	}
	msg := userMsg
	c.Document.Status = domain.DocumentStatusFailed
	c.Document.Error = &msg
	c.Job.Status = domain.JobStatusFailed
	c.Job.Error = jobErr
	c.Job.RetryCount++
	c.Job.CompletedAt = &now
	c.Job.LockedAt = nil
	c.Notify.DocumentStatus(ctx, c.Document)
	return nil
}

// Succeed marks the document COMPLETED and the job COMPLETED together.
func (c *Context) Succeed(totalModules int) error {
	if c == nil || c.Document == nil || c.Job == nil {
		return nil
	}
	now := time.Now()
	raw, err := json.Marshal(Progress{
		CurrentStage:   domain.DocumentStatusCompleted,
		CompletedUnits: totalModules,
		TotalUnits:     totalModules,
	})
	if err != nil {
		return err
	}
	err = c.DB.WithContext(c.ctx()).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: c.ctx(), Tx: tx}
		if err := c.Repos.Documents.UpdateFields(dbc, c.Document.ID, map[string]interface{}{
			"status":     domain.DocumentStatusCompleted,
			"progress":   datatypes.JSON(raw),
			"error":      nil,
			"updated_at": now,
		}); err != nil {
			return err
		}
		return c.Repos.ProcessingJobs.UpdateFields(dbc, c.Job.ID, map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"error":        "",
			"completed_at": now,
			"locked_at":    nil,
			"updated_at":   now,
		})
	})
	if err != nil {
		return err
	}
	c.Document.Status = domain.DocumentStatusCompleted
	c.Document.Progress = datatypes.JSON(raw)
	c.Document.Error = nil
	c.Job.Status = domain.JobStatusCompleted
	c.Job.CompletedAt = &now
	c.Job.LockedAt = nil
	c.Notify.DocumentStatus(c.ctx(), c.Document)
	return nil
}

// Annotate merges fields into the document row without a status change.
func (c *Context) Annotate(updates map[string]interface{}) error {
	if c == nil || c.Document == nil || len(updates) == 0 {
		return nil
	}
	return c.Repos.Documents.UpdateFields(dbctx.Context{Ctx: c.ctx()}, c.Document.ID, updates)
}

// DocumentID is a nil-safe accessor for log fields.
func (c *Context) DocumentID() uuid.UUID {
	if c == nil || c.Document == nil {
		return uuid.Nil
	}
	return c.Document.ID
}
