package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type ModuleRepo interface {
	Create(dbc dbctx.Context, m *types.Module) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Module, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Module, error)
	ListQuizReadyIDs(dbc dbctx.Context, documentID uuid.UUID) ([]uuid.UUID, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error
}

type moduleRepo struct {
	db      *gorm.DB
	log     *logger.Logger
	vectors VectorStore
}

func NewModuleRepo(db *gorm.DB, baseLog *logger.Logger, vectors VectorStore) ModuleRepo {
	return &moduleRepo{
		db:      db,
		log:     baseLog.With("repo", "ModuleRepo"),
		vectors: vectors,
	}
}

func (r *moduleRepo) Create(dbc dbctx.Context, m *types.Module) error {
	if m == nil {
		return nil
	}
	return dbc.DB(r.db).Create(m).Error
}

func (r *moduleRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Module, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var m types.Module
	err := dbc.DB(r.db).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *moduleRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Module, error) {
	var out []*types.Module
	if documentID == uuid.Nil {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("document_id = ?", documentID).
		Order("module_order ASC").
		Find(&out).Error
	return out, err
}

func (r *moduleRepo) ListQuizReadyIDs(dbc dbctx.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	if documentID == uuid.Nil {
		return out, nil
	}
	err := dbc.DB(r.db).
		Model(&types.Module{}).
		Where("document_id = ? AND is_quiz_ready = ?", documentID, true).
		Order("module_order ASC").
		Pluck("id", &out).Error
	return out, err
}

func (r *moduleRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).
		Model(&types.Module{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteByDocument removes every module of a document together with its chunks,
// embeddings, quiz and questions.
func (r *moduleRepo) DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error {
	if documentID == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		var moduleIDs []uuid.UUID
		if err := tx.Model(&types.Module{}).Where("document_id = ?", documentID).Pluck("id", &moduleIDs).Error; err != nil {
			return err
		}
		if len(moduleIDs) == 0 {
			return nil
		}
		var chunkIDs []uuid.UUID
		if err := tx.Model(&types.ModuleChunk{}).Where("module_id IN ?", moduleIDs).Pluck("id", &chunkIDs).Error; err != nil {
			return err
		}
		if r.vectors != nil {
			if err := r.vectors.Delete(tx, chunkIDs); err != nil {
				return err
			}
		}
		if err := tx.Where("module_id IN ?", moduleIDs).Delete(&types.ModuleChunk{}).Error; err != nil {
			return err
		}
		var quizIDs []uuid.UUID
		if err := tx.Model(&types.Quiz{}).Where("module_id IN ?", moduleIDs).Pluck("id", &quizIDs).Error; err != nil {
			return err
		}
		if len(quizIDs) > 0 {
			if err := tx.Where("quiz_id IN ?", quizIDs).Delete(&types.Question{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", quizIDs).Delete(&types.Quiz{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("id IN ?", moduleIDs).Delete(&types.Module{}).Error
	})
}
