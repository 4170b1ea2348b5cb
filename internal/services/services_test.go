package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/data/repos/testutil"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/ingestion"
	"github.com/yungbote/docquiz-backend/internal/platform/apierr"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/objectstore"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []uuid.UUID
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, jobID)
	return nil
}

func (d *fakeDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

type env struct {
	db       *gorm.DB
	svc      DocumentService
	status   StatusService
	repos    *repos.Repos
	dispatch *fakeDispatcher
	storage  ingestion.Storage
}

func newEnv(t *testing.T) env {
	t.Helper()
	db := testutil.SQLite(t)
	store, err := repos.NewVectorStore("serialized")
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	log := logger.Nop()
	r := repos.New(db, log, store)
	obj, err := objectstore.NewLocal(log, t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	storage := ingestion.NewStorage(log, obj, 0)
	d := &fakeDispatcher{}
	return env{
		db:       db,
		svc:      NewDocumentService(db, log, r, storage, d, nil, 1024),
		status:   NewStatusService(log, r),
		repos:    r,
		dispatch: d,
		storage:  storage,
	}
}

func TestSubmitNewDocument(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	data := []byte("Photosynthesis converts light into chemical energy.")

	res, err := e.svc.Submit(ctx, SubmitInput{OwnerID: uuid.New(), Filename: "bio.txt", MimeType: "text/plain", Data: data})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Created || !res.Dispatched || res.Restarted {
		t.Fatalf("flags: %+v", res)
	}
	if res.Job.IdempotencyKey != ContentHash(data) || res.Document.ContentHash != ContentHash(data) {
		t.Fatalf("idempotency key not the content hash")
	}
	if e.dispatch.calls() != 1 || e.dispatch.jobs[0] != res.Job.ID {
		t.Fatalf("dispatch: %v", e.dispatch.jobs)
	}
	doc, err := e.repos.Documents.GetByID(dbctx.Context{Ctx: ctx}, res.Document.ID)
	if err != nil || doc == nil {
		t.Fatalf("GetByID: %v %v", doc, err)
	}
	if doc.Status != domain.DocumentStatusPending || doc.StoragePath != "documents/"+doc.ID.String()+"/bio.txt" {
		t.Fatalf("stored document: %+v", doc)
	}
	pages, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if page, ok := pages.Next(); !ok || page != string(data) {
		t.Fatalf("stored bytes: %q", page)
	}
}

func TestSubmitDuplicateReusesJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	in := SubmitInput{OwnerID: uuid.New(), Filename: "a.md", Data: []byte("# Title\nsame bytes")}

	first, err := e.svc.Submit(ctx, in)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	in.Filename = "renamed.md"
	second, err := e.svc.Submit(ctx, in)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if second.Created || second.Dispatched || second.Restarted {
		t.Fatalf("duplicate flags: %+v", second)
	}
	if second.Document.ID != first.Document.ID || second.Job.ID != first.Job.ID {
		t.Fatalf("duplicate mapped to a new document")
	}
	if e.dispatch.calls() != 1 {
		t.Fatalf("dispatch calls: want=1 got=%d", e.dispatch.calls())
	}
}

func TestSubmitRestartsFailedJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	data := []byte("retry me")

	first, err := e.svc.Submit(ctx, SubmitInput{OwnerID: uuid.New(), Filename: "r.txt", Data: data})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := e.repos.Documents.UpdateFields(dbc, first.Document.ID, map[string]interface{}{
		"status": domain.DocumentStatusFailed,
		"error":  "boom",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if err := e.repos.ProcessingJobs.UpdateFields(dbc, first.Job.ID, map[string]interface{}{
		"status":      domain.JobStatusFailed,
		"error":       "boom",
		"retry_count": 2,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	res, err := e.svc.Submit(ctx, SubmitInput{OwnerID: uuid.New(), Filename: "r.txt", Data: data})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !res.Restarted || !res.Dispatched || res.Created {
		t.Fatalf("flags: %+v", res)
	}
	if res.Job.ID != first.Job.ID || e.dispatch.calls() != 2 {
		t.Fatalf("restart did not redispatch the same job")
	}
	job, _ := e.repos.ProcessingJobs.GetByID(dbc, first.Job.ID)
	if job.Status != domain.JobStatusPending || job.RetryCount != 2 || job.Error != "" {
		t.Fatalf("job after restart: %+v", job)
	}
	doc, _ := e.repos.Documents.GetByID(dbc, first.Document.ID)
	if doc.Status != domain.DocumentStatusPending || doc.Error != nil || string(doc.Progress) != queuedProgress {
		t.Fatalf("document after restart: status=%s error=%v progress=%s", doc.Status, doc.Error, doc.Progress)
	}
}

func TestSubmitValidation(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		name   string
		in     SubmitInput
		status int
	}{
		{"empty", SubmitInput{Filename: "a.txt"}, http.StatusBadRequest},
		{"no name", SubmitInput{Data: []byte("x")}, http.StatusBadRequest},
		{"too big", SubmitInput{Filename: "a.txt", Data: make([]byte, 2048)}, http.StatusRequestEntityTooLarge},
		{"docx", SubmitInput{Filename: "a.docx", Data: []byte("x")}, http.StatusUnsupportedMediaType},
	}
	for _, c := range cases {
		_, err := e.svc.Submit(context.Background(), c.in)
		ae, ok := apierr.As(err)
		if !ok || ae.Status != c.status {
			t.Fatalf("%s: want status %d, got %v", c.name, c.status, err)
		}
	}
	if e.dispatch.calls() != 0 {
		t.Fatalf("invalid uploads were dispatched")
	}
}

func TestSubmitDispatchFailureMarksFailed(t *testing.T) {
	e := newEnv(t)
	e.dispatch.err = errors.New("temporal unavailable")
	ctx := context.Background()
	data := []byte("cannot schedule")

	if _, err := e.svc.Submit(ctx, SubmitInput{OwnerID: uuid.New(), Filename: "x.txt", Data: data}); err == nil {
		t.Fatalf("expected dispatch error")
	}
	dbc := dbctx.Context{Ctx: ctx}
	job, err := e.repos.ProcessingJobs.GetByIdempotencyKey(dbc, ContentHash(data))
	if err != nil || job == nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.Status != domain.JobStatusFailed || job.RetryCount != 1 {
		t.Fatalf("job: %+v", job)
	}
	doc, _ := e.repos.Documents.GetByID(dbc, job.DocumentID)
	if doc.Status != domain.DocumentStatusFailed || doc.Error == nil {
		t.Fatalf("document: %+v", doc)
	}

	// the next identical upload is a restart once dispatch recovers
	e.dispatch.err = nil
	res, err := e.svc.Submit(ctx, SubmitInput{OwnerID: uuid.New(), Filename: "x.txt", Data: data})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !res.Restarted || res.Job.ID != job.ID {
		t.Fatalf("resubmit: %+v", res)
	}
}

func TestStatusPayload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.status.Get(ctx, uuid.New()); err == nil {
		t.Fatalf("expected not found")
	} else if ae, ok := apierr.As(err); !ok || ae.Status != http.StatusNotFound {
		t.Fatalf("want 404, got %v", err)
	}

	res, err := e.svc.Submit(ctx, SubmitInput{OwnerID: uuid.New(), Filename: "s.txt", Data: []byte("status")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p, err := e.status.Get(ctx, res.Document.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Status != domain.DocumentStatusPending || p.Terminal() || p.ModulesReady == nil || len(p.ModulesReady) != 0 {
		t.Fatalf("payload: %+v", p)
	}
	if string(p.Progress) != queuedProgress {
		t.Fatalf("progress: %s", p.Progress)
	}

	dbc := dbctx.Context{Ctx: ctx}
	m1 := testutil.SeedModule(t, ctx, e.db, res.Document.ID, 1)
	m2 := testutil.SeedModule(t, ctx, e.db, res.Document.ID, 2)
	m3 := testutil.SeedModule(t, ctx, e.db, res.Document.ID, 3)
	for _, id := range []uuid.UUID{m3.ID, m1.ID} {
		if err := e.repos.Modules.UpdateFields(dbc, id, map[string]interface{}{"is_quiz_ready": true}); err != nil {
			t.Fatalf("UpdateFields: %v", err)
		}
	}
	p, err = e.status.Get(ctx, res.Document.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(p.ModulesReady) != 2 || p.ModulesReady[0] != m1.ID || p.ModulesReady[1] != m3.ID {
		t.Fatalf("modules_ready: %v (m2=%s)", p.ModulesReady, m2.ID)
	}
}
