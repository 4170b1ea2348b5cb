package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/realtime"
	"github.com/yungbote/docquiz-backend/internal/realtime/bus"
)

// Notifier is the fire-and-forget side channel for status pushes and
// downstream consumers of quiz.ready. Calls return immediately and
// failures are only logged.
type Notifier interface {
	DocumentStatus(ctx context.Context, doc *domain.Document)
	QuizReady(ctx context.Context, moduleID, quizID uuid.UUID)
}

const publishTimeout = 3 * time.Second

type busNotifier struct {
	log *logger.Logger
	bus bus.Bus
}

func NewNotifier(log *logger.Logger, b bus.Bus) Notifier {
	return &busNotifier{
		log: log.With("service", "Notifier"),
		bus: b,
	}
}

func (n *busNotifier) DocumentStatus(ctx context.Context, doc *domain.Document) {
	if n == nil || n.bus == nil || doc == nil {
		return
	}
	progress := json.RawMessage(doc.Progress)
	if len(progress) == 0 {
		progress = json.RawMessage("{}")
	}
	n.publish(ctx, realtime.Message{
		Channel: realtime.DocumentChannel(doc.ID),
		Event:   realtime.EventDocumentStatus,
		Data: map[string]any{
			"document_id": doc.ID,
			"status":      doc.Status,
			"progress":    progress,
			"error":       doc.Error,
		},
	})
}

func (n *busNotifier) QuizReady(ctx context.Context, moduleID, quizID uuid.UUID) {
	if n == nil || n.bus == nil {
		return
	}
	n.publish(ctx, realtime.Message{
		Channel: realtime.ModuleChannel(moduleID),
		Event:   realtime.EventQuizReady,
		Data: map[string]any{
			"module_id": moduleID,
			"quiz_id":   quizID,
		},
	})
}

func (n *busNotifier) publish(ctx context.Context, msg realtime.Message) {
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := n.bus.Publish(pctx, msg); err != nil {
			n.log.Warn("publish failed", "event", msg.Event, "channel", msg.Channel, "error", err)
		}
	}()
}

type nopNotifier struct{}

func NewNopNotifier() Notifier { return nopNotifier{} }

func (nopNotifier) DocumentStatus(context.Context, *domain.Document) {}
func (nopNotifier) QuizReady(context.Context, uuid.UUID, uuid.UUID) {}
