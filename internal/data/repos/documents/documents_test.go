package documents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
)

func TestDocumentRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	doc := &types.Document{OwnerID: uuid.New(), Filename: "a.txt", StoragePath: "documents/a/a.txt", ContentHash: "h1"}
	if err := repo.Create(dbc, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID == uuid.Nil {
		t.Fatalf("Create: expected id to be assigned")
	}

	got, err := repo.GetByID(dbc, doc.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: doc=%v err=%v", got, err)
	}
	if got.Status != types.DocumentStatusPending {
		t.Fatalf("status: want=%q got=%q", types.DocumentStatusPending, got.Status)
	}
	var progress map[string]any
	if err := json.Unmarshal(got.Progress, &progress); err != nil || progress["current_stage"] != "queued" {
		t.Fatalf("default progress: %s err=%v", got.Progress, err)
	}

	if err := repo.SetProgress(dbc, doc.ID, map[string]any{"current_stage": "EXTRACTING", "completed_units": 1, "total_units": 3}); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	msg := "bad"
	if err := repo.UpdateFields(dbc, doc.ID, map[string]interface{}{"status": types.DocumentStatusFailed, "error": msg}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, _ = repo.GetByID(dbc, doc.ID)
	if got.Status != types.DocumentStatusFailed || got.Error == nil || *got.Error != "bad" {
		t.Fatalf("after update: status=%q error=%v", got.Status, got.Error)
	}
	if err := json.Unmarshal(got.Progress, &progress); err != nil || progress["current_stage"] != "EXTRACTING" {
		t.Fatalf("progress: %s", got.Progress)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("GetByID(missing): doc=%v err=%v", missing, err)
	}
}

func TestProcessingJobRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessingJobRepo(db, testutil.Logger(t))

	key := "key-" + uuid.NewString()
	doc := testutil.SeedDocument(t, ctx, tx, key)
	job := &types.ProcessingJob{DocumentID: doc.ID, IdempotencyKey: key}
	if err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != types.JobStatusPending {
		t.Fatalf("default status: want=%q got=%q", types.JobStatusPending, job.Status)
	}

	dup := &types.ProcessingJob{DocumentID: doc.ID, IdempotencyKey: key}
	if err := tx.SavePoint("dup").Error; err != nil {
		t.Fatalf("savepoint: %v", err)
	}
	if err := repo.Create(dbc, dup); err == nil {
		t.Fatalf("Create duplicate key: expected unique violation")
	}
	tx.RollbackTo("dup")

	byKey, err := repo.GetByIdempotencyKey(dbc, key)
	if err != nil || byKey == nil || byKey.ID != job.ID {
		t.Fatalf("GetByIdempotencyKey: job=%v err=%v", byKey, err)
	}

	locked, err := repo.LockForUpdate(dbc, job.ID)
	if err != nil || locked == nil || locked.ID != job.ID {
		t.Fatalf("LockForUpdate: job=%v err=%v", locked, err)
	}

	if err := repo.UpdateFields(dbc, job.ID, map[string]interface{}{"retry_count": gorm.Expr("retry_count + 1")}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, _ := repo.GetByID(dbc, job.ID)
	if got.RetryCount != 1 {
		t.Fatalf("retry_count: want=1 got=%d", got.RetryCount)
	}
}

func TestProcessingJobRepo_ClaimNextPending(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewProcessingJobRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, db, "claim")
	older := testutil.SeedJob(t, ctx, db, doc.ID, "k-old", types.JobStatusPending)
	if err := db.Model(&types.ProcessingJob{}).Where("id = ?", older.ID).Update("created_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	newer := testutil.SeedJob(t, ctx, db, doc.ID, "k-new", types.JobStatusPending)
	testutil.SeedJob(t, ctx, db, doc.ID, "k-done", types.JobStatusCompleted)

	first, err := repo.ClaimNextPending(dbc, time.Minute)
	if err != nil || first == nil || first.ID != older.ID {
		t.Fatalf("first claim: job=%v err=%v", first, err)
	}
	second, err := repo.ClaimNextPending(dbc, time.Minute)
	if err != nil || second == nil || second.ID != newer.ID {
		t.Fatalf("second claim: job=%v err=%v", second, err)
	}
	third, err := repo.ClaimNextPending(dbc, time.Minute)
	if err != nil || third != nil {
		t.Fatalf("third claim: expected nothing, job=%v err=%v", third, err)
	}

	// An abandoned lock is reclaimable.
	again, err := repo.ClaimNextPending(dbc, -time.Second)
	if err != nil || again == nil {
		t.Fatalf("stale reclaim: job=%v err=%v", again, err)
	}
}
