package learning

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type ModuleChunkRepo interface {
	// CreateBatch writes chunks and their embeddings atomically and sets the
	// module's total_chunks.
	CreateBatch(dbc dbctx.Context, moduleID uuid.UUID, chunks []*types.ModuleChunk) error
	ListByModule(dbc dbctx.Context, moduleID uuid.UUID, withEmbeddings bool) ([]*types.ModuleChunk, error)
	CountByModule(dbc dbctx.Context, moduleID uuid.UUID) (int64, error)
}

type moduleChunkRepo struct {
	db      *gorm.DB
	log     *logger.Logger
	vectors VectorStore
}

func NewModuleChunkRepo(db *gorm.DB, baseLog *logger.Logger, vectors VectorStore) ModuleChunkRepo {
	return &moduleChunkRepo{
		db:      db,
		log:     baseLog.With("repo", "ModuleChunkRepo", "vector_store", vectors.Kind()),
		vectors: vectors,
	}
}

func (r *moduleChunkRepo) CreateBatch(dbc dbctx.Context, moduleID uuid.UUID, chunks []*types.ModuleChunk) error {
	if moduleID == uuid.Nil {
		return fmt.Errorf("module id required")
	}
	if len(chunks) == 0 {
		return nil
	}
	for i, c := range chunks {
		if c == nil {
			return fmt.Errorf("chunk %d is nil", i)
		}
		c.ModuleID = moduleID
	}
	return dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		if err := r.vectors.Save(tx, chunks); err != nil {
			return fmt.Errorf("save embeddings: %w", err)
		}
		return tx.Model(&types.Module{}).
			Where("id = ?", moduleID).
			Update("total_chunks", len(chunks)).Error
	})
}

func (r *moduleChunkRepo) ListByModule(dbc dbctx.Context, moduleID uuid.UUID, withEmbeddings bool) ([]*types.ModuleChunk, error) {
	var out []*types.ModuleChunk
	if moduleID == uuid.Nil {
		return out, nil
	}
	db := dbc.DB(r.db)
	if err := db.Where("module_id = ?", moduleID).Order("chunk_order ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	if !withEmbeddings || len(out) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	vecs, err := r.vectors.Load(db, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range out {
		c.Embedding = vecs[c.ID]
	}
	return out, nil
}

func (r *moduleChunkRepo) CountByModule(dbc dbctx.Context, moduleID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.ModuleChunk{}).Where("module_id = ?", moduleID).Count(&n).Error
	return n, err
}
