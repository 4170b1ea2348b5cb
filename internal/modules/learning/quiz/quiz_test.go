package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/data/repos/testutil"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

var capitals = [][]string{
	{"Paris", "London", "Berlin", "Madrid"},
	{"Tokyo", "Seoul", "Beijing", "Bangkok"},
	{"Ottawa", "Toronto", "Vancouver", "Montreal"},
	{"Canberra", "Sydney", "Melbourne", "Perth"},
	{"Brasilia", "Santiago", "Lima", "Quito"},
}

func goodSet() []Draft {
	out := make([]Draft, 0, 5)
	for i, opts := range capitals {
		out = append(out, Draft{
			Question:      fmt.Sprintf("Capital %d?", i),
			Options:       append([]string(nil), opts...),
			CorrectAnswer: opts[0],
			Concept:       fmt.Sprintf("capital-%d", i),
			Difficulty:    0.4,
		})
	}
	return out
}

func setJSON(t *testing.T, qs []Draft) string {
	t.Helper()
	items := make([]map[string]any, 0, len(qs))
	for _, q := range qs {
		items = append(items, map[string]any{
			"question":       q.Question,
			"options":        q.Options,
			"correct_answer": q.CorrectAnswer,
			"explanation":    "because",
			"concept":        q.Concept,
			"difficulty":     q.Difficulty,
		})
	}
	b, err := json.Marshal(map[string]any{"questions": items})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

// basisEmbedder gives every distinct lowercase text its own unit vector.
type basisEmbedder struct {
	mu  sync.Mutex
	idx map[string]int
}

func (e *basisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idx == nil {
		e.idx = map[string]int{}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		key := strings.ToLower(strings.TrimSpace(t))
		n, ok := e.idx[key]
		if !ok {
			n = len(e.idx)
			e.idx[key] = n
		}
		v := make([]float32, domain.EmbeddingDimensions)
		v[n%len(v)] = 1
		out[i] = v
	}
	return out, nil
}

func newValidator() *Validator {
	return NewValidator(&basisEmbedder{}, 0)
}

func TestValidatorAcceptsAndScores(t *testing.T) {
	res, err := newValidator().Validate(context.Background(), goodSet())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected acceptance, reason=%q", res.Reason)
	}
	for i, q := range res.Questions {
		if q.DistractorQuality <= 0 || q.DistractorQuality > 1.0000001 {
			t.Fatalf("question %d quality out of range: %f", i, q.DistractorQuality)
		}
	}
}

func TestValidatorRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func([]Draft) []Draft
		reason string
	}{
		{"too few", func(qs []Draft) []Draft { return qs[:4] }, ReasonQuestionCount},
		{"duplicate concept", func(qs []Draft) []Draft { qs[3].Concept = qs[1].Concept; return qs }, ReasonDuplicateConcepts},
		{"answer not in options", func(qs []Draft) []Draft { qs[2].CorrectAnswer = "Atlantis"; return qs }, ReasonInvalidOptions},
		{"three options", func(qs []Draft) []Draft { qs[0].Options = qs[0].Options[:3]; return qs }, ReasonInvalidOptions},
		{"near duplicate distractor", func(qs []Draft) []Draft {
			qs[1].Options = []string{"The Mitochondria", "the mitochondria", "Ribosome", "Nucleus"}
			qs[1].CorrectAnswer = "The Mitochondria"
			return qs
		}, ReasonSimilarDistractor},
		{"inverse option", func(qs []Draft) []Draft {
			qs[4].Options = []string{"Brasilia", "Not Brasilia", "Lima", "Quito"}
			return qs
		}, ReasonInverseOption},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := newValidator().Validate(context.Background(), c.mutate(goodSet()))
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if res.Accepted || res.Reason != c.reason {
				t.Fatalf("want reject %q, got accepted=%v reason=%q", c.reason, res.Accepted, res.Reason)
			}
		})
	}
}

func TestValidatorReportsFirstFailingQuestion(t *testing.T) {
	qs := goodSet()
	qs[0].Options = []string{"Paris", "Not Paris", "Berlin", "Madrid"}
	qs[1].Options = qs[1].Options[:3]
	emb := &countingEmbedder{}
	res, err := NewValidator(emb, 0).Validate(context.Background(), qs)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Accepted || res.Reason != ReasonInverseOption {
		t.Fatalf("want %q from question 0, got accepted=%v reason=%q", ReasonInverseOption, res.Accepted, res.Reason)
	}
	if emb.texts != domain.OptionsPerQuestion {
		t.Fatalf("embedded texts: want=%d got=%d", domain.OptionsPerQuestion, emb.texts)
	}

	qs = goodSet()
	qs[0].CorrectAnswer = "Lyon"
	qs[1].Options = []string{"Tokyo", "Not Tokyo", "Beijing", "Bangkok"}
	res, err = NewValidator(&countingEmbedder{}, 0).Validate(context.Background(), qs)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Reason != ReasonInvalidOptions {
		t.Fatalf("want %q from question 0, got %q", ReasonInvalidOptions, res.Reason)
	}
}

type countingEmbedder struct {
	basisEmbedder
	texts int
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.texts += len(texts)
	return e.basisEmbedder.Embed(ctx, texts)
}

func TestKeyTermsKeepsRunesWhole(t *testing.T) {
	// byte 4000 falls inside the last "é" of the heading
	content := strings.Repeat("x", fallbackScanCap-10) + "\n# Résumé Écrit"
	terms := KeyTerms(content)
	for _, term := range terms {
		if !utf8.ValidString(term) {
			t.Fatalf("term split a rune: %q", term)
		}
	}
	if len(terms) == 0 || terms[0] != "Résumé" {
		t.Fatalf("KeyTerms: %q", terms)
	}
	if got := firstRunes("ééé", 2); got != "éé" {
		t.Fatalf("firstRunes: %q", got)
	}
	if got := firstRunes("abc", 10); got != "abc" {
		t.Fatalf("firstRunes short: %q", got)
	}
}

func TestParseDrafts(t *testing.T) {
	raw := "```json\n" + `[{"question_text":"Q?","options":["a","b","c","d"],"correct_answer":"a","concept_covered":"x","difficulty_score":"0.7"}]` + "\n```"
	got, ok := ParseDrafts(raw)
	if !ok || len(got) != 1 {
		t.Fatalf("ParseDrafts: ok=%v got=%+v", ok, got)
	}
	if got[0].Question != "Q?" || got[0].Concept != "x" || got[0].Difficulty != 0.7 {
		t.Fatalf("draft: %+v", got[0])
	}
	if _, ok := ParseDrafts("no json here"); ok {
		t.Fatalf("expected failure on prose")
	}
	if _, ok := ParseDrafts(`{"questions":[]}`); ok {
		t.Fatalf("expected failure on empty list")
	}
}

func TestFallbackQuestionsAreStructurallyValid(t *testing.T) {
	content := "# Cell Biology\nThe Golgi Apparatus packages proteins. Definition: Osmosis moves water.\n" +
		`A "lipid bilayer" surrounds the cell. Krebs Cycle runs in the Mitochondrial Matrix.`
	for _, text := range []string{content, "", "short words only"} {
		qs := FallbackQuestions("Cells", text)
		if len(qs) != domain.QuestionsPerQuiz {
			t.Fatalf("questions: want=5 got=%d", len(qs))
		}
		concepts := map[string]bool{}
		for _, q := range qs {
			if len(q.Options) != domain.OptionsPerQuestion || q.CorrectAnswer != q.Options[0] {
				t.Fatalf("bad question: %+v", q)
			}
			opts := map[string]bool{}
			for _, o := range q.Options {
				if opts[o] {
					t.Fatalf("duplicate option %q in %+v", o, q)
				}
				opts[o] = true
			}
			if concepts[q.Concept] {
				t.Fatalf("duplicate concept %q", q.Concept)
			}
			concepts[q.Concept] = true
		}
	}
	terms := KeyTerms(content)
	if len(terms) == 0 || terms[0] != "Cell Biology" {
		t.Fatalf("KeyTerms: %v", terms)
	}
}

type scriptGen struct {
	mu    sync.Mutex
	outs  []string
	errs  []error
	temps []float64
}

func (g *scriptGen) Complete(_ context.Context, _ string, temperature float64, _ int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.temps)
	g.temps = append(g.temps, temperature)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	out := ""
	if i < len(g.outs) {
		out = g.outs[i]
	}
	return out, err
}

type recordingNotifier struct {
	mu    sync.Mutex
	ready []uuid.UUID
}

func (n *recordingNotifier) QuizReady(_ context.Context, _, quizID uuid.UUID) {
	n.mu.Lock()
	n.ready = append(n.ready, quizID)
	n.mu.Unlock()
}

type fixture struct {
	gen    *Generator
	llm    *scriptGen
	notify *recordingNotifier
	repos  *repos.Repos
	module *domain.Module
}

func newFixture(t *testing.T, g *scriptGen) fixture {
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
	ctx := context.Background()
	doc := testutil.SeedDocument(t, ctx, db, "hash-"+uuid.NewString())
	mod := testutil.SeedModule(t, ctx, db, doc.ID, 1)
	mod.Title = "Geography"
	if err := r.Modules.UpdateFields(dbctx.Context{Ctx: ctx}, mod.ID, map[string]interface{}{"title": mod.Title}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	n := &recordingNotifier{}
	gen := NewGenerator(log, g, newValidator(), r.Modules, r.ModuleChunks, r.Quizzes, n, DefaultConfig())
	return fixture{gen: gen, llm: g, notify: n, repos: r, module: mod}
}

func TestGenerateForModuleCachesQuiz(t *testing.T) {
	f := newFixture(t, &scriptGen{})
	f.llm.outs = []string{setJSON(t, goodSet())}
	ctx := context.Background()

	first, err := f.gen.GenerateForModule(ctx, f.module.ID)
	if err != nil {
		t.Fatalf("GenerateForModule: %v", err)
	}
	second, err := f.gen.GenerateForModule(ctx, f.module.ID)
	if err != nil {
		t.Fatalf("GenerateForModule (cached): %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("quiz ids differ: %s vs %s", first.ID, second.ID)
	}
	if len(f.llm.temps) != 1 {
		t.Fatalf("model calls: want=1 got=%d", len(f.llm.temps))
	}
	if len(second.Questions) != 5 || second.Questions[0].QuestionOrder != 1 || second.Questions[4].QuestionOrder != 5 {
		t.Fatalf("questions: %+v", second.Questions)
	}
	if !first.Validated || first.GenerationSource != SourceValidated || first.Title != "Geography Quiz" {
		t.Fatalf("quiz fields: %+v", first)
	}
	if first.Difficulty != domain.QuizDifficultyMedium || first.DurationMinutes != domain.QuizDefaultDurationMins {
		t.Fatalf("quiz defaults: %+v", first)
	}
	mod, _ := f.repos.Modules.GetByID(dbctx.Context{Ctx: ctx}, f.module.ID)
	if !mod.IsQuizReady {
		t.Fatalf("module not flagged quiz ready")
	}
	if len(f.notify.ready) != 1 || f.notify.ready[0] != first.ID {
		t.Fatalf("notifier: %v", f.notify.ready)
	}
}

func TestGenerateEscalatesAndKeepsLastWellFormed(t *testing.T) {
	dup := goodSet()
	dup[1].Concept = dup[0].Concept
	short := goodSet()[:4]
	f := newFixture(t, &scriptGen{
		outs: []string{setJSON(t, dup), "not json", setJSON(t, short)},
	})

	q, err := f.gen.GenerateForModule(context.Background(), f.module.ID)
	if err != nil {
		t.Fatalf("GenerateForModule: %v", err)
	}
	want := []float64{0.7, 0.8, 0.9}
	if fmt.Sprint(f.llm.temps) != fmt.Sprint(want) {
		t.Fatalf("temperatures: %v", f.llm.temps)
	}
	if q.Validated || q.GenerationSource != SourceBestEffort {
		t.Fatalf("want best effort, got %+v", q)
	}
	if len(q.Questions) != 5 || q.Questions[0].Text != dup[0].Question {
		t.Fatalf("want the five-question first attempt, got %d questions", len(q.Questions))
	}
	for _, qq := range q.Questions {
		if qq.DistractorQuality != 0.5 {
			t.Fatalf("unscored question quality: want=0.5 got=%f", qq.DistractorQuality)
		}
	}
}

func TestGenerateSkipsMalformedAttempts(t *testing.T) {
	twoOpts := `[{"question":"Q1?","options":["x","y"],"correct_answer":"z","concept":"a"},` +
		`{"question":"Q2?","options":["x","y"],"correct_answer":"x","concept":"b"}]`
	missing := goodSet()
	missing[2].CorrectAnswer = "Atlantis"
	dupOpts := goodSet()
	dupOpts[4].Options = []string{"Brasilia", "Lima", "Lima", "Quito"}

	f := newFixture(t, &scriptGen{
		outs: []string{twoOpts, setJSON(t, missing), setJSON(t, dupOpts)},
	})
	q, err := f.gen.GenerateForModule(context.Background(), f.module.ID)
	if err != nil {
		t.Fatalf("GenerateForModule: %v", err)
	}
	if len(f.llm.temps) != 3 {
		t.Fatalf("model calls: want=3 got=%d", len(f.llm.temps))
	}
	if q.GenerationSource != SourceFallback || q.Validated {
		t.Fatalf("want fallback quiz, got source=%s validated=%v", q.GenerationSource, q.Validated)
	}
	if len(q.Questions) != domain.QuestionsPerQuiz {
		t.Fatalf("questions: want=5 got=%d", len(q.Questions))
	}
	for _, qq := range q.Questions {
		var opts []string
		if err := json.Unmarshal(qq.Options, &opts); err != nil {
			t.Fatalf("options: %v", err)
		}
		if len(opts) != domain.OptionsPerQuestion || indexOf(opts, qq.CorrectAnswer) < 0 {
			t.Fatalf("stored question malformed: options=%v correct=%q", opts, qq.CorrectAnswer)
		}
	}
}

func TestGenerateMalformedThenValid(t *testing.T) {
	missing := goodSet()
	missing[0].CorrectAnswer = "Lyon"
	f := newFixture(t, &scriptGen{outs: []string{setJSON(t, missing), setJSON(t, goodSet())}})
	q, err := f.gen.GenerateForModule(context.Background(), f.module.ID)
	if err != nil {
		t.Fatalf("GenerateForModule: %v", err)
	}
	if len(f.llm.temps) != 2 || !q.Validated || q.GenerationSource != SourceValidated {
		t.Fatalf("calls=%d validated=%v source=%s", len(f.llm.temps), q.Validated, q.GenerationSource)
	}
}

func TestWellFormed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func([]Draft) []Draft
		want   bool
	}{
		{"good", func(qs []Draft) []Draft { return qs }, true},
		{"duplicate concepts still well formed", func(qs []Draft) []Draft { qs[1].Concept = qs[0].Concept; return qs }, true},
		{"four questions", func(qs []Draft) []Draft { return qs[:4] }, false},
		{"six questions", func(qs []Draft) []Draft { return append(qs, qs[0]) }, false},
		{"two options", func(qs []Draft) []Draft { qs[1].Options = qs[1].Options[:2]; return qs }, false},
		{"repeated option", func(qs []Draft) []Draft { qs[3].Options[2] = qs[3].Options[1]; return qs }, false},
		{"answer missing", func(qs []Draft) []Draft { qs[4].CorrectAnswer = "Bogota"; return qs }, false},
		{"empty question", func(qs []Draft) []Draft { qs[0].Question = ""; return qs }, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := WellFormed(c.mutate(goodSet())); got != c.want {
				t.Fatalf("WellFormed: want=%v got=%v", c.want, got)
			}
		})
	}
}

func TestGenerateStopsAtFirstValidAttempt(t *testing.T) {
	dup := goodSet()
	dup[1].Concept = dup[0].Concept
	f := newFixture(t, &scriptGen{outs: []string{setJSON(t, dup), setJSON(t, goodSet()), setJSON(t, dup)}})
	q, err := f.gen.GenerateForModule(context.Background(), f.module.ID)
	if err != nil {
		t.Fatalf("GenerateForModule: %v", err)
	}
	if len(f.llm.temps) != 2 || !q.Validated {
		t.Fatalf("calls=%d validated=%v", len(f.llm.temps), q.Validated)
	}
	var opts []string
	if err := json.Unmarshal(q.Questions[0].Options, &opts); err != nil || len(opts) != 4 {
		t.Fatalf("options: %v %v", opts, err)
	}
}

func TestGenerateFallsBackWithoutParseableOutput(t *testing.T) {
	fail := errors.New("upstream 500")
	f := newFixture(t, &scriptGen{
		outs: []string{"", "I cannot help", ""},
		errs: []error{fail, nil, fail},
	})
	q, err := f.gen.GenerateForModule(context.Background(), f.module.ID)
	if err != nil {
		t.Fatalf("GenerateForModule: %v", err)
	}
	if q.GenerationSource != SourceFallback || len(q.Questions) != 5 {
		t.Fatalf("want fallback quiz with 5 questions, got source=%s n=%d", q.GenerationSource, len(q.Questions))
	}
	for _, qq := range q.Questions {
		if !strings.Contains(string(qq.Options), qq.CorrectAnswer) {
			t.Fatalf("correct answer missing from options: %+v", qq)
		}
	}
}

func TestGenerateUnknownModule(t *testing.T) {
	f := newFixture(t, &scriptGen{})
	if _, err := f.gen.GenerateForModule(context.Background(), uuid.New()); !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("want ErrModuleNotFound, got %v", err)
	}
}
