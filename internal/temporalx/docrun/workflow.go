package docrun

import (
	"errors"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow runs one processing job. The workflow ID is the job ID.
// Stage retries happen inside the pipeline, so the activity runs once.
func Workflow(ctx workflow.Context, timeout time.Duration) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return errors.New("docrun: missing job id")
	}
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var out Result
	if err := workflow.ExecuteActivity(ctx, ActivityProcess, jobID).Get(ctx, &out); err != nil {
		return err
	}
	if out.Skipped {
		workflow.GetLogger(ctx).Info("job was not pending; nothing to do", "job_id", jobID)
	}
	return nil
}
