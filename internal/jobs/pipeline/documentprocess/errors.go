package documentprocess

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/docquiz-backend/internal/ingestion/extract"
	"github.com/yungbote/docquiz-backend/internal/platform/httpx"
)

var (
	ErrEmptyText  = errors.New("document contains no extractable text")
	ErrNotPending = errors.New("job is not pending")
	ErrJobMissing = errors.New("processing job not found")
)

// terminalError marks a failure that another attempt cannot fix.
type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

func terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

func isTerminal(err error) bool {
	var te *terminalError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, extract.ErrUnreadable) ||
		errors.Is(err, extract.ErrPasswordProtected) ||
		errors.Is(err, extract.ErrUnsupportedType) ||
		errors.Is(err, ErrEmptyText)
}

// withRetry runs fn up to StageMaxAttempts times with exponential backoff.
// Terminal errors and context cancellation end the loop at once.
func (p *Pipeline) withRetry(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < p.cfg.StageMaxAttempts; attempt++ {
		if attempt > 0 {
			wait := httpx.JitterSleep(httpx.Backoff(p.cfg.StageBackoff, attempt-1, p.cfg.StageMaxBackoff))
			p.log.Warn("retrying stage", "stage", stage, "attempt", attempt+1, "wait", wait, "error", err)
			if serr := httpx.Sleep(ctx, wait); serr != nil {
				return serr
			}
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if isTerminal(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", stage, p.cfg.StageMaxAttempts, err)
}

// humanizeError is the short message stored on Document.error.
func humanizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, extract.ErrPasswordProtected):
		return "The document is password protected."
	case errors.Is(err, extract.ErrUnsupportedType):
		return "The document type is not supported."
	case errors.Is(err, extract.ErrUnreadable):
		return "The document could not be read."
	case errors.Is(err, ErrEmptyText):
		return "The document contains no readable text."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Processing was interrupted. Please upload the document again."
	default:
		return "Processing failed. Please upload the document again."
	}
}
