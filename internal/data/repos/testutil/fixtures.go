package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docquiz-backend/internal/domain"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, hash string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Filename:    "notes.txt",
		StoragePath: "documents/x/notes.txt",
		ContentHash: hash,
		Status:      types.DocumentStatusPending,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, key string, status string) *types.ProcessingJob {
	tb.Helper()
	j := &types.ProcessingJob{
		ID:             uuid.New(),
		DocumentID:     docID,
		IdempotencyKey: key,
		Status:         status,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}

func SeedModule(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, order int) *types.Module {
	tb.Helper()
	m := &types.Module{
		ID:          uuid.New(),
		DocumentID:  docID,
		ModuleOrder: order,
		Title:       "module",
		Content:     "content",
		EndOffset:   7,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed module: %v", err)
	}
	return m
}
