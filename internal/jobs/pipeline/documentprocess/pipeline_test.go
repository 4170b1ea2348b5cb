package documentprocess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/data/repos/testutil"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/ingestion"
	jobrt "github.com/yungbote/docquiz-backend/internal/jobs/runtime"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/embedding"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/segment"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/objectstore"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%04d", i%10000)
	}
	return strings.Join(parts, " ")
}

type countingSegmenter struct {
	inner Segmenter
	calls int
}

func (s *countingSegmenter) Segment(ctx context.Context, text string) ([]segment.Span, error) {
	s.calls++
	return s.inner.Segment(ctx, text)
}

// flakyEmbedder fails the first failures calls, then embeds with placeholders.
type flakyEmbedder struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (e *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.calls <= e.failures
	e.mu.Unlock()
	if fail {
		return nil, errors.New("embedding service unavailable")
	}
	return embedding.NewPlaceholder().Embed(ctx, texts)
}

type summaryGen struct {
	out   string
	err   error
	calls int
}

func (g *summaryGen) Complete(context.Context, string, float64, int) (string, error) {
	g.calls++
	return g.out, g.err
}

type fakeQuizzes struct {
	err     error
	modules []uuid.UUID
}

func (q *fakeQuizzes) GenerateForModule(_ context.Context, moduleID uuid.UUID) (*domain.Quiz, error) {
	q.modules = append(q.modules, moduleID)
	if q.err != nil {
		return nil, q.err
	}
	return &domain.Quiz{ID: uuid.New(), ModuleID: moduleID}, nil
}

type harness struct {
	db        *gorm.DB
	repos     *repos.Repos
	storage   ingestion.Storage
	segmenter *countingSegmenter
	embedder  *flakyEmbedder
	summaries *summaryGen
	quizzes   *fakeQuizzes
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SQLite(t)
	store, err := repos.NewVectorStore("serialized")
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	obj, err := objectstore.NewLocal(logger.Nop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return &harness{
		db:        db,
		repos:     repos.New(db, logger.Nop(), store),
		storage:   ingestion.NewStorage(logger.Nop(), obj, 0),
		segmenter: &countingSegmenter{inner: segment.New(logger.Nop(), nil, segment.DefaultConfig())},
		embedder:  &flakyEmbedder{},
		summaries: &summaryGen{out: "  A short summary.  "},
		quizzes:   &fakeQuizzes{},
	}
}

func (h *harness) pipeline() *Pipeline {
	cfg := DefaultConfig()
	cfg.StageBackoff = 0
	return New(h.db, logger.Nop(), h.repos, h.storage, h.segmenter, h.embedder, h.summaries, h.quizzes, nil, cfg)
}

func (h *harness) seed(t *testing.T, filename string, data []byte) (*domain.Document, *domain.ProcessingJob) {
	t.Helper()
	ctx := context.Background()
	doc := testutil.SeedDocument(t, ctx, h.db, uuid.NewString())
	path := h.storage.PathFor(doc.ID, filename)
	if err := h.storage.Put(ctx, path, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := h.repos.Documents.UpdateFields(dbctx.Context{Ctx: ctx}, doc.ID, map[string]interface{}{"storage_path": path}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	job := testutil.SeedJob(t, ctx, h.db, doc.ID, doc.ContentHash, domain.JobStatusPending)
	return doc, job
}

func (h *harness) reload(t *testing.T, docID, jobID uuid.UUID) (*domain.Document, *domain.ProcessingJob) {
	t.Helper()
	dbc := dbctx.Context{Ctx: context.Background()}
	doc, err := h.repos.Documents.GetByID(dbc, docID)
	if err != nil || doc == nil {
		t.Fatalf("document: %v", err)
	}
	job, err := h.repos.ProcessingJobs.GetByID(dbc, jobID)
	if err != nil || job == nil {
		t.Fatalf("job: %v", err)
	}
	return doc, job
}

func progressOf(t *testing.T, doc *domain.Document) jobrt.Progress {
	t.Helper()
	var p jobrt.Progress
	if err := json.Unmarshal(doc.Progress, &p); err != nil {
		t.Fatalf("progress json: %v", err)
	}
	return p
}

func TestRunCompletesDocument(t *testing.T) {
	h := newHarness(t)
	doc, job := h.seed(t, "notes.txt", []byte(words(3500)))

	if err := h.pipeline().Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc, job = h.reload(t, doc.ID, job.ID)
	if doc.Status != domain.DocumentStatusCompleted || doc.Error != nil {
		t.Fatalf("document: status=%s error=%v", doc.Status, doc.Error)
	}
	if p := progressOf(t, doc); p.CurrentStage != domain.DocumentStatusCompleted || p.CompletedUnits != 2 || p.TotalUnits != 2 {
		t.Fatalf("progress: %+v", p)
	}
	if doc.PageCount != 1 {
		t.Fatalf("page count: %d", doc.PageCount)
	}
	if job.Status != domain.JobStatusCompleted || job.StartedAt == nil || job.CompletedAt == nil || job.RetryCount != 0 {
		t.Fatalf("job: %+v", job)
	}

	dbc := dbctx.Context{Ctx: context.Background()}
	mods, err := h.repos.Modules.ListByDocument(dbc, doc.ID)
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(mods) != 2 || mods[0].ModuleOrder != 1 || mods[1].ModuleOrder != 2 {
		t.Fatalf("modules: %+v", mods)
	}
	if mods[0].WordCount != 3000 || mods[1].WordCount != 500 {
		t.Fatalf("word counts: %d, %d", mods[0].WordCount, mods[1].WordCount)
	}
	if mods[0].TotalChunks != 7 || mods[1].TotalChunks != 1 {
		t.Fatalf("total chunks: %d, %d", mods[0].TotalChunks, mods[1].TotalChunks)
	}
	if mods[0].Summary != "A short summary." || h.summaries.calls != 2 {
		t.Fatalf("summary: %q calls=%d", mods[0].Summary, h.summaries.calls)
	}
	chunks, err := h.repos.ModuleChunks.ListByModule(dbc, mods[0].ID, true)
	if err != nil {
		t.Fatalf("ListByModule: %v", err)
	}
	for i, c := range chunks {
		if c.ChunkOrder != i+1 || len(c.Embedding) != domain.EmbeddingDimensions {
			t.Fatalf("chunk %d: order=%d dims=%d", i, c.ChunkOrder, len(c.Embedding))
		}
	}
	if len(h.quizzes.modules) != 2 || h.quizzes.modules[0] != mods[0].ID {
		t.Fatalf("quiz calls: %v", h.quizzes.modules)
	}
}

func TestRunRequiresPendingJob(t *testing.T) {
	h := newHarness(t)
	_, job := h.seed(t, "notes.txt", []byte(words(600)))
	if err := h.repos.ProcessingJobs.UpdateFields(dbctx.Context{Ctx: context.Background()}, job.ID, map[string]interface{}{
		"status": domain.JobStatusProcessing,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	err := h.pipeline().Run(context.Background(), job.ID)
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("want ErrNotPending, got %v", err)
	}
	if h.segmenter.calls != 0 {
		t.Fatalf("pipeline ran for a non-pending job")
	}
	if err := h.pipeline().Run(context.Background(), uuid.New()); !errors.Is(err, ErrJobMissing) {
		t.Fatalf("want ErrJobMissing, got %v", err)
	}
}

func TestRunEmptyTextIsTerminal(t *testing.T) {
	h := newHarness(t)
	doc, job := h.seed(t, "blank.txt", []byte(" \n\t \n"))

	if err := h.pipeline().Run(context.Background(), job.ID); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("want ErrEmptyText, got %v", err)
	}
	doc, job = h.reload(t, doc.ID, job.ID)
	if doc.Status != domain.DocumentStatusFailed || doc.Error == nil || *doc.Error != "The document contains no readable text." {
		t.Fatalf("document: status=%s error=%v", doc.Status, doc.Error)
	}
	if job.Status != domain.JobStatusFailed || job.RetryCount != 1 || job.LockedAt != nil {
		t.Fatalf("job: %+v", job)
	}
	if h.segmenter.calls != 0 {
		t.Fatalf("segmenter called for empty text")
	}
}

func TestRunUnreadablePDFIsTerminal(t *testing.T) {
	h := newHarness(t)
	doc, job := h.seed(t, "scan.pdf", []byte("this is not a pdf"))

	if err := h.pipeline().Run(context.Background(), job.ID); err == nil {
		t.Fatalf("expected failure")
	}
	doc, _ = h.reload(t, doc.ID, job.ID)
	if doc.Status != domain.DocumentStatusFailed || *doc.Error != "The document could not be read." {
		t.Fatalf("document: status=%s error=%v", doc.Status, *doc.Error)
	}
	if p := progressOf(t, doc); p.CurrentStage != domain.DocumentStatusExtracting {
		t.Fatalf("failure should leave the extracting snapshot, got %+v", p)
	}
}

func TestRunRetriesTransientStageErrors(t *testing.T) {
	h := newHarness(t)
	h.embedder.failures = 2
	doc, job := h.seed(t, "notes.txt", []byte(words(800)))

	if err := h.pipeline().Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc, _ = h.reload(t, doc.ID, job.ID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Fatalf("status: %s", doc.Status)
	}
	if h.embedder.calls != 3 {
		t.Fatalf("embed calls: want=3 got=%d", h.embedder.calls)
	}
}

func TestRunExhaustedRetriesKeepPartialState(t *testing.T) {
	h := newHarness(t)
	h.embedder.failures = 100
	doc, job := h.seed(t, "notes.txt", []byte(words(800)))

	if err := h.pipeline().Run(context.Background(), job.ID); err == nil {
		t.Fatalf("expected failure")
	}
	doc, job = h.reload(t, doc.ID, job.ID)
	if doc.Status != domain.DocumentStatusFailed || *doc.Error != "Processing failed. Please upload the document again." {
		t.Fatalf("document: status=%s error=%v", doc.Status, *doc.Error)
	}
	if job.Status != domain.JobStatusFailed || job.RetryCount != 1 || !strings.Contains(job.Error, "GENERATING_MODULES") {
		t.Fatalf("job: %+v", job)
	}
	if h.embedder.calls != 3 {
		t.Fatalf("embed calls: want=3 got=%d", h.embedder.calls)
	}
	mods, _ := h.repos.Modules.ListByDocument(dbctx.Context{Ctx: context.Background()}, doc.ID)
	if len(mods) != 1 || mods[0].TotalChunks != 0 {
		t.Fatalf("partial modules: %+v", mods)
	}
}

func TestRunResumesMatchingModules(t *testing.T) {
	h := newHarness(t)
	h.embedder.failures = 100
	doc, job := h.seed(t, "notes.txt", []byte(words(800)))
	if err := h.pipeline().Run(context.Background(), job.ID); err == nil {
		t.Fatalf("expected failure")
	}
	dbc := dbctx.Context{Ctx: context.Background()}
	before, _ := h.repos.Modules.ListByDocument(dbc, doc.ID)

	// what the submit gate does for a FAILED job
	if err := h.repos.ProcessingJobs.UpdateFields(dbc, job.ID, map[string]interface{}{
		"status": domain.JobStatusPending,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	h.embedder.failures = 0
	h.embedder.calls = 0
	if err := h.pipeline().Run(context.Background(), job.ID); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	after, _ := h.repos.Modules.ListByDocument(dbc, doc.ID)
	if len(after) != 1 || after[0].ID != before[0].ID || after[0].TotalChunks != 2 {
		t.Fatalf("modules after resume: %+v", after)
	}
	_, job = h.reload(t, doc.ID, job.ID)
	if job.Status != domain.JobStatusCompleted || job.RetryCount != 1 {
		t.Fatalf("job: %+v", job)
	}
}

func TestRunDiscardsModulesWhenPlanChanges(t *testing.T) {
	h := newHarness(t)
	h.embedder.failures = 100
	doc, job := h.seed(t, "notes.txt", []byte(words(800)))
	if err := h.pipeline().Run(context.Background(), job.ID); err == nil {
		t.Fatalf("expected failure")
	}
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	before, _ := h.repos.Modules.ListByDocument(dbc, doc.ID)
	if len(before) != 1 {
		t.Fatalf("modules before retry: %+v", before)
	}

	// shorter text plans a different span
	if err := h.storage.Put(ctx, h.storage.PathFor(doc.ID, "notes.txt"), []byte(words(500))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := h.repos.ProcessingJobs.UpdateFields(dbc, job.ID, map[string]interface{}{
		"status": domain.JobStatusPending,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	h.embedder.failures = 0
	if err := h.pipeline().Run(ctx, job.ID); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	after, _ := h.repos.Modules.ListByDocument(dbc, doc.ID)
	if len(after) != 1 || after[0].ID == before[0].ID || after[0].ModuleOrder != 1 {
		t.Fatalf("want one fresh module, got %+v", after)
	}
	if after[0].EndOffset == before[0].EndOffset {
		t.Fatalf("end offset unchanged: %d", after[0].EndOffset)
	}
}

func TestRunQuizFailureDoesNotFailDocument(t *testing.T) {
	h := newHarness(t)
	h.quizzes.err = errors.New("model down")
	doc, job := h.seed(t, "notes.txt", []byte(words(700)))

	if err := h.pipeline().Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc, _ = h.reload(t, doc.ID, job.ID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Fatalf("status: %s", doc.Status)
	}
	if len(h.quizzes.modules) != 1 {
		t.Fatalf("quiz attempts: %d", len(h.quizzes.modules))
	}
}

func TestRunSummaryFallsBackToExcerpt(t *testing.T) {
	h := newHarness(t)
	h.summaries.err = errors.New("quota")
	text := words(700)
	doc, job := h.seed(t, "notes.txt", []byte(text))

	if err := h.pipeline().Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	mods, _ := h.repos.Modules.ListByDocument(dbctx.Context{Ctx: context.Background()}, doc.ID)
	if len(mods) != 1 || mods[0].Summary != strings.TrimSpace(text[:200]) {
		t.Fatalf("summary: %q", mods[0].Summary)
	}
}

func TestHumanizeError(t *testing.T) {
	cases := map[error]string{
		ErrEmptyText:                      "The document contains no readable text.",
		fmt.Errorf("x: %w", ErrEmptyText): "The document contains no readable text.",
		errors.New("socket closed"):       "Processing failed. Please upload the document again.",
		context.DeadlineExceeded:          "Processing was interrupted. Please upload the document again.",
	}
	for err, want := range cases {
		if got := humanizeError(err); got != want {
			t.Fatalf("humanizeError(%v): want=%q got=%q", err, want, got)
		}
	}
}
