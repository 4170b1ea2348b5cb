package docrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/docquiz-backend/internal/jobs/pipeline/documentprocess"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

// Runner is satisfied by *documentprocess.Pipeline.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

type Activities struct {
	Log       *logger.Logger
	Runner    Runner
	Heartbeat time.Duration
}

func (a *Activities) Process(ctx context.Context, jobID string) (Result, error) {
	res := Result{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Runner == nil {
		return res, errors.New("docrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, temporal.NewNonRetryableApplicationError("invalid job id", "InvalidJobID", err)
	}

	stop := a.startHeartbeat(ctx)
	defer stop()

	err = a.Runner.Run(ctx, id)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, documentprocess.ErrNotPending):
		res.Skipped = true
		return res, nil
	default:
		a.log().Warn("document job failed", "job_id", id, "error", err)
		// The failure is already on the job row; another attempt would only
		// find a FAILED job.
		return res, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("job %s failed", id), "DocumentProcessFailed", err)
	}
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	every := a.Heartbeat
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

func (a *Activities) log() *logger.Logger {
	if a.Log == nil {
		return logger.Nop()
	}
	return a.Log
}
