package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/apierr"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

// StatusPayload is what pollers and the SSE stream see for a document.
type StatusPayload struct {
	DocumentID   uuid.UUID       `json:"document_id"`
	Status       string          `json:"status"`
	Progress     json.RawMessage `json:"progress"`
	ModulesReady []uuid.UUID     `json:"modules_ready"`
	Error        *string         `json:"error"`
}

func (p *StatusPayload) Terminal() bool {
	return p != nil && domain.DocumentStatusTerminal(p.Status)
}

type StatusService interface {
	Get(ctx context.Context, documentID uuid.UUID) (*StatusPayload, error)
}

type statusService struct {
	log   *logger.Logger
	repos *repos.Repos
}

func NewStatusService(baseLog *logger.Logger, r *repos.Repos) StatusService {
	return &statusService{
		log:   baseLog.With("service", "StatusService"),
		repos: r,
	}
}

func (s *statusService) Get(ctx context.Context, documentID uuid.UUID) (*StatusPayload, error) {
	dbc := dbctx.Context{Ctx: ctx}
	doc, err := s.repos.Documents.GetByID(dbc, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apierr.NotFound("not_found", "document %s not found", documentID)
	}
	ready, err := s.repos.Modules.ListQuizReadyIDs(dbc, doc.ID)
	if err != nil {
		return nil, err
	}
	if ready == nil {
		ready = []uuid.UUID{}
	}
	progress := json.RawMessage(doc.Progress)
	if len(progress) == 0 {
		progress = json.RawMessage("{}")
	}
	return &StatusPayload{
		DocumentID:   doc.ID,
		Status:       doc.Status,
		Progress:     progress,
		ModulesReady: ready,
		Error:        doc.Error,
	}, nil
}
