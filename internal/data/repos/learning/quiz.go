package learning

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/db"
	types "github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type QuizRepo interface {
	GetByModuleID(dbc dbctx.Context, moduleID uuid.UUID) (*types.Quiz, error)
	// CreateWithQuestions persists the quiz, its questions and the module's
	// is_quiz_ready flag in one transaction. When a quiz already exists for the
	// module the existing row is returned and created is false.
	CreateWithQuestions(dbc dbctx.Context, quiz *types.Quiz, questions []*types.Question) (out *types.Quiz, created bool, err error)
}

type quizRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizRepo(db *gorm.DB, baseLog *logger.Logger) QuizRepo {
	return &quizRepo{
		db:  db,
		log: baseLog.With("repo", "QuizRepo"),
	}
}

func (r *quizRepo) GetByModuleID(dbc dbctx.Context, moduleID uuid.UUID) (*types.Quiz, error) {
	if moduleID == uuid.Nil {
		return nil, nil
	}
	return getQuiz(dbc.DB(r.db), moduleID)
}

func getQuiz(db *gorm.DB, moduleID uuid.UUID) (*types.Quiz, error) {
	var q types.Quiz
	err := db.
		Preload("Questions", func(tx *gorm.DB) *gorm.DB { return tx.Order("question_order ASC") }).
		Where("module_id = ?", moduleID).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quizRepo) CreateWithQuestions(dbc dbctx.Context, quiz *types.Quiz, questions []*types.Question) (*types.Quiz, bool, error) {
	if quiz == nil || quiz.ModuleID == uuid.Nil {
		return nil, false, fmt.Errorf("quiz with module id required")
	}
	var (
		out     *types.Quiz
		created bool
	)
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		existing, err := getQuiz(tx, quiz.ModuleID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		if err := tx.Omit("Questions").Create(quiz).Error; err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		for i, q := range questions {
			q.QuizID = quiz.ID
			if q.QuestionOrder == 0 {
				q.QuestionOrder = i + 1
			}
		}
		if len(questions) > 0 {
			if err := tx.Create(questions).Error; err != nil {
				return fmt.Errorf("insert questions: %w", err)
			}
		}
		if err := tx.Model(&types.Module{}).
			Where("id = ?", quiz.ModuleID).
			Updates(map[string]interface{}{"is_quiz_ready": true, "updated_at": time.Now()}).Error; err != nil {
			return fmt.Errorf("flag module quiz ready: %w", err)
		}
		created = true
		out = quiz
		return nil
	})
	if err != nil {
		// A concurrent writer may have won the unique module_id race.
		if db.IsUniqueViolation(err) {
			if existing, gerr := r.GetByModuleID(dbc, quiz.ModuleID); gerr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	if created {
		out.Questions = make([]types.Question, 0, len(questions))
		for _, q := range questions {
			out.Questions = append(out.Questions, *q)
		}
	}
	return out, created, nil
}
