package services

import (
	"context"

	"github.com/google/uuid"
)

// Dispatcher hands a PENDING processing job to whatever runs pipelines:
// the in-process worker pool or a Temporal workflow.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}
