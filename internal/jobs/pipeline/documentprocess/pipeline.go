package documentprocess

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/domain"
	jobrt "github.com/yungbote/docquiz-backend/internal/jobs/runtime"
	"github.com/yungbote/docquiz-backend/internal/observability"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

// Run processes the document behind jobID. The job must be PENDING; it is
// moved to PROCESSING under a row lock so two runners can never both enter.
// Stage failures are recorded on the document and job before being returned.
func (p *Pipeline) Run(ctx context.Context, jobID uuid.UUID) (err error) {
	job, doc, err := p.claim(ctx, jobID)
	if err != nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, "document.process",
		attribute.String("job.id", job.ID.String()),
		attribute.String("document.id", doc.ID.String()),
		attribute.Int("job.retry_count", job.RetryCount),
	)
	defer func() { observability.EndSpan(span, err) }()

	jc := jobrt.NewContext(ctx, p.db, job, doc, p.repos, p.notify)
	log := p.log.With("job_id", job.ID, "document_id", doc.ID)
	log.Info("processing started", "retry_count", job.RetryCount, "filename", doc.Filename)
	started := time.Now()

	stage, modules, runErr := p.execute(jc, log)
	if runErr != nil {
		if ferr := jc.Fail(stage, humanizeError(runErr), runErr); ferr != nil {
			log.Error("could not record failure", "stage", stage, "error", ferr)
		}
		observability.Current().IncJobOutcome(domain.JobStatusFailed)
		log.Warn("processing failed", "stage", stage, "terminal", isTerminal(runErr), "error", runErr)
		return fmt.Errorf("document %s failed in %s: %w", doc.ID, stage, runErr)
	}
	if err := jc.Succeed(modules); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	observability.Current().IncJobOutcome(domain.JobStatusCompleted)
	log.Info("processing completed", "modules", modules, "elapsed", time.Since(started).String())
	return nil
}

func (p *Pipeline) claim(ctx context.Context, jobID uuid.UUID) (*domain.ProcessingJob, *domain.Document, error) {
	var (
		job *domain.ProcessingJob
		doc *domain.Document
	)
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		j, err := p.repos.ProcessingJobs.LockForUpdate(dbc, jobID)
		if err != nil {
			return err
		}
		if j == nil {
			return fmt.Errorf("%w: %s", ErrJobMissing, jobID)
		}
		if j.Status != domain.JobStatusPending {
			return fmt.Errorf("%w: job %s is %s", ErrNotPending, j.ID, j.Status)
		}
		d, err := p.repos.Documents.GetByID(dbc, j.DocumentID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("job %s references missing document %s", j.ID, j.DocumentID)
		}
		now := time.Now()
		if err := p.repos.ProcessingJobs.UpdateFields(dbc, j.ID, map[string]interface{}{
			"status":       domain.JobStatusProcessing,
			"started_at":   now,
			"completed_at": nil,
			"locked_at":    now,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		j.Status = domain.JobStatusProcessing
		j.StartedAt = &now
		j.CompletedAt = nil
		j.LockedAt = &now
		job, doc = j, d
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return job, doc, nil
}

// execute returns the stage it stopped in, so failures are attributed.
func (p *Pipeline) execute(jc *jobrt.Context, log *logger.Logger) (string, int, error) {
	var text string
	err := p.timed(domain.DocumentStatusExtracting, func() (err error) {
		text, err = p.extractText(jc)
		return err
	})
	if err != nil {
		return domain.DocumentStatusExtracting, 0, err
	}

	var plans []modulePlan
	err = p.timed(domain.DocumentStatusChunking, func() (err error) {
		plans, err = p.planModules(jc, text)
		return err
	})
	if err != nil {
		return domain.DocumentStatusChunking, 0, err
	}
	log.Info("modules planned", "modules", len(plans), "text_runes", len([]rune(text)))

	err = p.timed(domain.DocumentStatusGeneratingModules, func() error {
		return p.buildModules(jc, plans, log)
	})
	if err != nil {
		return domain.DocumentStatusGeneratingModules, 0, err
	}
	return domain.DocumentStatusCompleted, len(plans), nil
}

func (p *Pipeline) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.Current().ObservePipelineStage(strings.ToLower(stage), status, time.Since(start))
	return err
}
