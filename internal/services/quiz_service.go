package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/quiz"
	"github.com/yungbote/docquiz-backend/internal/platform/apierr"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type QuizService interface {
	// Get returns the stored quiz for a module, or a not_found error when the
	// module has none yet.
	Get(ctx context.Context, moduleID uuid.UUID) (*domain.Quiz, error)
	// Generate returns the module's quiz, creating it when missing.
	Generate(ctx context.Context, moduleID uuid.UUID) (*domain.Quiz, error)
}

type quizService struct {
	log       *logger.Logger
	repos     *repos.Repos
	generator *quiz.Generator
}

func NewQuizService(baseLog *logger.Logger, r *repos.Repos, generator *quiz.Generator) QuizService {
	return &quizService{
		log:       baseLog.With("service", "QuizService"),
		repos:     r,
		generator: generator,
	}
}

func (s *quizService) Get(ctx context.Context, moduleID uuid.UUID) (*domain.Quiz, error) {
	q, err := s.repos.Quizzes.GetByModuleID(dbctx.Context{Ctx: ctx}, moduleID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, apierr.NotFound("not_found", "no quiz for module %s", moduleID)
	}
	return q, nil
}

func (s *quizService) Generate(ctx context.Context, moduleID uuid.UUID) (*domain.Quiz, error) {
	q, err := s.generator.GenerateForModule(ctx, moduleID)
	if errors.Is(err, quiz.ErrModuleNotFound) {
		return nil, apierr.NotFound("not_found", "module %s not found", moduleID)
	}
	if err != nil {
		s.log.Warn("quiz generation failed", "module_id", moduleID, "error", err)
		return nil, err
	}
	return q, nil
}
