package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/db"
	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/ingestion"
	"github.com/yungbote/docquiz-backend/internal/ingestion/extract"
	"github.com/yungbote/docquiz-backend/internal/platform/apierr"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

const queuedProgress = `{"current_stage":"queued"}`

type SubmitInput struct {
	OwnerID  uuid.UUID
	Filename string
	MimeType string
	Data     []byte
}

type SubmitResult struct {
	Document   *domain.Document
	Job        *domain.ProcessingJob
	Created    bool
	Restarted  bool
	Dispatched bool
}

type DocumentService interface {
	// Submit is the idempotency gate: identical bytes map to one document.
	// In-flight or completed work is returned untouched, a FAILED job is reset
	// and dispatched again, and new content is stored and dispatched.
	Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error)
}

type documentService struct {
	db       *gorm.DB
	log      *logger.Logger
	repos    *repos.Repos
	storage  ingestion.Storage
	dispatch Dispatcher
	notify   Notifier
	maxBytes int64
}

func NewDocumentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	r *repos.Repos,
	storage ingestion.Storage,
	dispatch Dispatcher,
	notify Notifier,
	maxBytes int64,
) DocumentService {
	if notify == nil {
		notify = NewNopNotifier()
	}
	return &documentService{
		db:       db,
		log:      baseLog.With("service", "DocumentService"),
		repos:    r,
		storage:  storage,
		dispatch: dispatch,
		notify:   notify,
		maxBytes: maxBytes,
	}
}

// ContentHash is the idempotency key for an upload.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *documentService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	key := ContentHash(in.Data)
	dbc := dbctx.Context{Ctx: ctx}

	job, err := s.repos.ProcessingJobs.GetByIdempotencyKey(dbc, key)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return s.resolveExisting(ctx, job)
	}

	res, err := s.create(ctx, in, key)
	if err != nil {
		return nil, err
	}
	if !res.Created {
		return res, nil
	}
	if err := s.dispatchJob(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *documentService) validate(in SubmitInput) error {
	name := strings.TrimSpace(in.Filename)
	if name == "" {
		return apierr.BadRequest("invalid_upload", "missing filename")
	}
	if len(in.Data) == 0 {
		return apierr.BadRequest("invalid_upload", "empty file")
	}
	if s.maxBytes > 0 && int64(len(in.Data)) > s.maxBytes {
		return apierr.New(http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Errorf("file is %d bytes; limit is %d", len(in.Data), s.maxBytes))
	}
	if extract.Kind(name) == "" {
		return apierr.New(http.StatusUnsupportedMediaType, "unsupported_type",
			fmt.Errorf("unsupported file type %q (allowed: pdf, txt, md)", filepath.Ext(name)))
	}
	return nil
}

func (s *documentService) resolveExisting(ctx context.Context, job *domain.ProcessingJob) (*SubmitResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if job.InFlightOrDone() {
		doc, err := s.repos.Documents.GetByID(dbc, job.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, fmt.Errorf("job %s references missing document %s", job.ID, job.DocumentID)
		}
		s.log.Info("duplicate submission", "document_id", doc.ID, "job_id", job.ID, "job_status", job.Status)
		return &SubmitResult{Document: doc, Job: job}, nil
	}

	res, err := s.restart(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if !res.Restarted {
		return res, nil
	}
	if err := s.dispatchJob(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// restart resets a FAILED job and its document under the job row lock.
// retry_count is kept so attempts keep accumulating.
func (s *documentService) restart(ctx context.Context, jobID uuid.UUID) (*SubmitResult, error) {
	res := &SubmitResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		job, err := s.repos.ProcessingJobs.LockForUpdate(dbc, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job %s vanished", jobID)
		}
		res.Job = job
		if job.Status == domain.JobStatusFailed {
			now := time.Now()
			if err := s.repos.Documents.UpdateFields(dbc, job.DocumentID, map[string]interface{}{
				"status":     domain.DocumentStatusPending,
				"error":      nil,
				"progress":   datatypes.JSON(queuedProgress),
				"updated_at": now,
			}); err != nil {
				return err
			}
			if err := s.repos.ProcessingJobs.UpdateFields(dbc, job.ID, map[string]interface{}{
				"status":       domain.JobStatusPending,
				"error":        "",
				"started_at":   nil,
				"completed_at": nil,
				"locked_at":    nil,
				"updated_at":   now,
			}); err != nil {
				return err
			}
			job.Status = domain.JobStatusPending
			job.Error = ""
			job.StartedAt, job.CompletedAt, job.LockedAt = nil, nil, nil
			res.Restarted = true
		}
		doc, err := s.repos.Documents.GetByID(dbc, job.DocumentID)
		if err != nil {
			return err
		}
		res.Document = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("restart job %s: %w", jobID, err)
	}
	if res.Restarted {
		s.log.Info("restarting failed job", "job_id", res.Job.ID, "document_id", res.Job.DocumentID, "retry_count", res.Job.RetryCount)
	}
	return res, nil
}

func (s *documentService) create(ctx context.Context, in SubmitInput, key string) (*SubmitResult, error) {
	docID := uuid.New()
	storagePath := s.storage.PathFor(docID, in.Filename)
	if err := s.storage.Put(ctx, storagePath, in.Data); err != nil {
		return nil, err
	}

	doc := &domain.Document{
		ID:          docID,
		OwnerID:     in.OwnerID,
		Filename:    filepath.Base(strings.TrimSpace(in.Filename)),
		MimeType:    strings.TrimSpace(in.MimeType),
		SizeBytes:   int64(len(in.Data)),
		StoragePath: storagePath,
		ContentHash: key,
	}
	job := &domain.ProcessingJob{
		ID:             uuid.New(),
		DocumentID:     docID,
		IdempotencyKey: key,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.repos.Documents.Create(dbc, doc); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		if err := s.repos.ProcessingJobs.Create(dbc, job); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		// A concurrent submit of the same bytes may have won the unique key.
		if db.IsUniqueViolation(err) {
			winner, gerr := s.repos.ProcessingJobs.GetByIdempotencyKey(dbctx.Context{Ctx: ctx}, key)
			if gerr == nil && winner != nil {
				s.log.Info("lost submit race; using existing job", "job_id", winner.ID)
				return s.resolveExisting(ctx, winner)
			}
		}
		return nil, err
	}
	s.log.Info("document submitted", "document_id", doc.ID, "job_id", job.ID, "size_bytes", doc.SizeBytes, "owner_id", in.OwnerID)
	return &SubmitResult{Document: doc, Job: job, Created: true}, nil
}

func (s *documentService) dispatchJob(ctx context.Context, res *SubmitResult) error {
	if s.dispatch == nil {
		return errors.New("no dispatcher configured")
	}
	if err := s.dispatch.Dispatch(ctx, res.Job.ID); err != nil {
		s.markDispatchFailed(ctx, res, err)
		return fmt.Errorf("dispatch job %s: %w", res.Job.ID, err)
	}
	res.Dispatched = true
	s.notify.DocumentStatus(ctx, res.Document)
	return nil
}

func (s *documentService) markDispatchFailed(ctx context.Context, res *SubmitResult, cause error) {
	msg := "could not schedule processing; please retry the upload"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.repos.Documents.UpdateFields(dbc, res.Document.ID, map[string]interface{}{
			"status": domain.DocumentStatusFailed,
			"error":  msg,
		}); err != nil {
			return err
		}
		return s.repos.ProcessingJobs.UpdateFields(dbc, res.Job.ID, map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"error":        cause.Error(),
			"retry_count":  gorm.Expr("retry_count + 1"),
			"completed_at": time.Now(),
		})
	})
	if err != nil {
		s.log.Error("could not record dispatch failure", "job_id", res.Job.ID, "error", err)
	}
}
