package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	jobrt "github.com/yungbote/docquiz-backend/internal/jobs/runtime"
	"github.com/yungbote/docquiz-backend/internal/jobs/pipeline/documentprocess"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/services"
)

// Runner executes one claimed job to a terminal state.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// StaleLock is how long a claimed but unstarted job stays reserved.
	StaleLock time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleLock <= 0 {
		c.StaleLock = 10 * time.Minute
	}
	return c
}

// Worker is the in-process pool. It polls for PENDING jobs and is also the
// local Dispatcher: Dispatch only wakes an idle loop, the row itself is the
// queue.
type Worker struct {
	db     *gorm.DB
	log    *logger.Logger
	repos  *repos.Repos
	runner Runner
	notify services.Notifier
	cfg    Config
	wake   chan struct{}
	wg     sync.WaitGroup
}

var _ services.Dispatcher = (*Worker)(nil)

func NewWorker(db *gorm.DB, baseLog *logger.Logger, r *repos.Repos, runner Runner, notify services.Notifier, cfg Config) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		db:     db,
		log:    baseLog.With("component", "JobWorker"),
		repos:  r,
		runner: runner,
		notify: notify,
		cfg:    cfg,
		wake:   make(chan struct{}, cfg.Concurrency),
	}
}

func (w *Worker) Dispatch(_ context.Context, jobID uuid.UUID) error {
	select {
	case w.wake <- struct{}{}:
	default:
	}
	w.log.Debug("job dispatched", "job_id", jobID)
	return nil
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop has exited after ctx is cancelled.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.wake:
		}
		for w.runNext(ctx, workerID) {
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// runNext claims and runs one job. It reports whether a job was found.
func (w *Worker) runNext(ctx context.Context, workerID int) bool {
	job, err := w.repos.ProcessingJobs.ClaimNextPending(dbctx.Context{Ctx: ctx}, w.cfg.StaleLock)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("ClaimNextPending failed", "worker_id", workerID, "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID,
					"job_id", job.ID,
					"panic", r,
				)
				w.failPanicked(ctx, job.ID, errFromRecover(r))
			}
		}()
		err := w.runner.Run(ctx, job.ID)
		switch {
		case err == nil:
		case errors.Is(err, documentprocess.ErrNotPending):
			w.log.Debug("job already taken", "worker_id", workerID, "job_id", job.ID)
		default:
			// the runner has already recorded the failure
			w.log.Warn("job failed", "worker_id", workerID, "job_id", job.ID, "error", err)
		}
	}()
	return true
}

func (w *Worker) failPanicked(ctx context.Context, jobID uuid.UUID, cause error) {
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	job, err := w.repos.ProcessingJobs.GetByID(dbc, jobID)
	if err != nil || job == nil {
		w.log.Error("could not load panicked job", "job_id", jobID, "error", err)
		return
	}
	doc, err := w.repos.Documents.GetByID(dbc, job.DocumentID)
	if err != nil || doc == nil {
		w.log.Error("could not load document of panicked job", "job_id", jobID, "error", err)
		return
	}
	jc := jobrt.NewContext(dbc.Ctx, w.db, job, doc, w.repos, w.notify)
	if err := jc.Fail(doc.Status, "Processing failed. Please upload the document again.", cause); err != nil {
		w.log.Error("could not record panic", "job_id", jobID, "error", err)
	}
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
