package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/docquiz-backend/internal/platform/httpx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/temporalx"
	"github.com/yungbote/docquiz-backend/internal/temporalx/docrun"
)

// Runner polls the document task queue and executes pipelines.
type Runner struct {
	log      *logger.Logger
	tc       temporalsdkclient.Client
	cfg      temporalx.Config
	pipeline docrun.Runner
}

func NewRunner(baseLog *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, pipeline docrun.Runner) (*Runner, error) {
	if tc == nil {
		return nil, errors.New("temporal client is not configured")
	}
	if pipeline == nil {
		return nil, errors.New("temporal worker needs a pipeline")
	}
	return &Runner{
		log:      baseLog.With("component", "TemporalWorker"),
		tc:       tc,
		cfg:      cfg,
		pipeline: pipeline,
	}, nil
}

// Start begins polling and returns once the worker is up. The worker stops
// when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("starting temporal worker", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)
	deadline := time.Now().Add(r.cfg.DialMaxWait)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt+1)
			return nil
		}
		w.Stop()

		var missing *serviceerror.NamespaceNotFound
		if errors.As(startErr, &missing) && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if r.cfg.DialMaxWait <= 0 || time.Now().After(deadline) {
			if errors.As(startErr, &missing) {
				return fmt.Errorf("temporal namespace %s not found: %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("temporal worker failed to start; retrying", "attempt", attempt+1, "error", startErr)
		if err := httpx.Sleep(ctx, httpx.Backoff(r.cfg.BackoffBase, attempt, r.cfg.BackoffMax)); err != nil {
			return err
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.cfg.WorkerConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.cfg.WorkerConcurrency,
	})
	acts := &docrun.Activities{Log: r.log, Runner: r.pipeline}
	w.RegisterWorkflowWithOptions(docrun.Workflow, workflow.RegisterOptions{Name: docrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Process, activity.RegisterOptions{Name: docrun.ActivityProcess})
	return w
}
