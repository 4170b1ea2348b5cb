package temporalx

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/services"
	"github.com/yungbote/docquiz-backend/internal/temporalx/docrun"
)

// Dispatcher starts one document_process workflow per job, keyed by job ID.
type Dispatcher struct {
	tc  temporalsdkclient.Client
	log *logger.Logger
	cfg Config
}

var _ services.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(tc temporalsdkclient.Client, baseLog *logger.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{tc: tc, log: baseLog.With("component", "TemporalDispatcher"), cfg: cfg}
}

func (d *Dispatcher) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	if d == nil || d.tc == nil {
		return errors.New("temporal dispatcher not configured")
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        jobID.String(),
		TaskQueue: d.cfg.TaskQueue,
		// A restarted job reuses its ID once the previous run has closed.
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	run, err := d.tc.ExecuteWorkflow(ctx, opts, docrun.WorkflowName, d.cfg.ActivityTimeout)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			d.log.Debug("workflow already running", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("start workflow for job %s: %w", jobID, err)
	}
	d.log.Info("workflow started", "job_id", jobID, "run_id", run.GetRunID())
	return nil
}
