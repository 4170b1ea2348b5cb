package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/prompts"
	"github.com/yungbote/docquiz-backend/internal/observability"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/llm"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

var ErrModuleNotFound = errors.New("module not found")

const (
	SourceValidated  = "validated"
	SourceBestEffort = "best_effort"
	SourceFallback   = "fallback"
)

// Notifier receives quiz.ready events. Implementations must not block and
// handle their own failures.
type Notifier interface {
	QuizReady(ctx context.Context, moduleID, quizID uuid.UUID)
}

type Config struct {
	Temperatures   []float64
	MaxTokens      int
	ContentCharCap int
}

func DefaultConfig() Config {
	return Config{
		Temperatures:   []float64{0.7, 0.8, 0.9},
		MaxTokens:      4096,
		ContentCharCap: 8000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Temperatures) == 0 {
		c.Temperatures = d.Temperatures
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.ContentCharCap <= 0 {
		c.ContentCharCap = d.ContentCharCap
	}
	return c
}

type Outcome struct {
	Questions []Draft
	Source    string
	Reason    string
}

type Generator struct {
	log       *logger.Logger
	gen       llm.Generator
	validator *Validator
	modules   repos.ModuleRepo
	chunks    repos.ModuleChunkRepo
	quizzes   repos.QuizRepo
	notify    Notifier
	cfg       Config
}

func NewGenerator(
	log *logger.Logger,
	gen llm.Generator,
	validator *Validator,
	modules repos.ModuleRepo,
	chunks repos.ModuleChunkRepo,
	quizzes repos.QuizRepo,
	notify Notifier,
	cfg Config,
) *Generator {
	return &Generator{
		log:       log.With("service", "QuizGenerator"),
		gen:       gen,
		validator: validator,
		modules:   modules,
		chunks:    chunks,
		quizzes:   quizzes,
		notify:    notify,
		cfg:       cfg.withDefaults(),
	}
}

// GenerateForModule returns the module's quiz, generating and persisting it
// on first use.
func (g *Generator) GenerateForModule(ctx context.Context, moduleID uuid.UUID) (*domain.Quiz, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if existing, err := g.quizzes.GetByModuleID(dbc, moduleID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	mod, err := g.modules.GetByID(dbc, moduleID)
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, ErrModuleNotFound
	}

	ctx, span := observability.StartSpan(ctx, "quiz.generate",
		attribute.String("module.id", moduleID.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	content, err := g.moduleContent(dbc, mod)
	if err != nil {
		return nil, err
	}
	out, err := g.Draft(ctx, mod.Title, mod.Summary, content)
	if err != nil {
		return nil, err
	}

	quiz := &domain.Quiz{
		ModuleID:         mod.ID,
		Title:            fmt.Sprintf("%s Quiz", strings.TrimSpace(mod.Title)),
		Difficulty:       domain.QuizDifficultyMedium,
		DurationMinutes:  domain.QuizDefaultDurationMins,
		Validated:        out.Source == SourceValidated,
		GenerationSource: out.Source,
	}
	rows, err := toQuestions(out.Questions)
	if err != nil {
		return nil, err
	}
	saved, created, err := g.quizzes.CreateWithQuestions(dbc, quiz, rows)
	if err != nil {
		return nil, fmt.Errorf("persist quiz: %w", err)
	}
	if created {
		observability.Current().IncQuizOutcome(out.Source)
		g.log.Info("quiz created",
			"module_id", mod.ID,
			"quiz_id", saved.ID,
			"source", out.Source,
			"reason", out.Reason,
		)
		if g.notify != nil {
			g.notify.QuizReady(ctx, mod.ID, saved.ID)
		}
	}
	return saved, nil
}

// Draft runs the escalating-temperature attempts. The first set that passes
// validation wins. Otherwise the last well-formed set is kept, and when no
// attempt produced one the regex fallback is used.
func (g *Generator) Draft(ctx context.Context, title, summary, content string) (Outcome, error) {
	var lastParsed *Outcome
	for i, temp := range g.cfg.Temperatures {
		p, err := prompts.Build(prompts.PromptQuizGeneration, prompts.Input{
			ModuleTitle:   title,
			ModuleSummary: firstNonEmpty(summary, title),
			ModuleContent: content,
			QuestionCount: domain.QuestionsPerQuiz,
			OptionCount:   domain.OptionsPerQuestion,
		})
		if err != nil {
			return Outcome{}, err
		}
		raw, err := g.gen.Complete(ctx, p.Text(), temp, g.cfg.MaxTokens)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}
			g.log.Warn("quiz attempt failed", "attempt", i+1, "temperature", temp, "error", err)
			continue
		}
		drafts, ok := ParseDrafts(raw)
		if !ok {
			g.log.Debug("quiz attempt unparseable", "attempt", i+1, "temperature", temp)
			continue
		}
		if !WellFormed(drafts) {
			g.log.Debug("quiz attempt malformed", "attempt", i+1, "temperature", temp, "questions", len(drafts))
			continue
		}

		res, err := g.validator.Validate(ctx, drafts)
		if err != nil {
			g.log.Warn("quiz validation errored", "attempt", i+1, "error", err)
			lastParsed = &Outcome{Questions: drafts, Source: SourceBestEffort, Reason: err.Error()}
			continue
		}
		if res.Accepted {
			return Outcome{Questions: res.Questions, Source: SourceValidated}, nil
		}
		g.log.Debug("quiz attempt rejected", "attempt", i+1, "reason", res.Reason)
		lastParsed = &Outcome{Questions: res.Questions, Source: SourceBestEffort, Reason: res.Reason}
	}
	if lastParsed != nil {
		return *lastParsed, nil
	}
	return Outcome{
		Questions: FallbackQuestions(title, firstNonEmpty(content, summary)),
		Source:    SourceFallback,
		Reason:    "no well-formed attempt",
	}, nil
}

func (g *Generator) moduleContent(dbc dbctx.Context, mod *domain.Module) (string, error) {
	chunks, err := g.chunks.ListByModule(dbc, mod.ID, false)
	if err != nil {
		return "", err
	}
	var text string
	if len(chunks) > 0 {
		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			parts = append(parts, c.Content)
		}
		text = strings.Join(parts, " ")
	}
	if strings.TrimSpace(text) == "" {
		text = firstNonEmpty(mod.Content, mod.Summary)
	}
	return firstRunes(text, g.cfg.ContentCharCap), nil
}

func toQuestions(drafts []Draft) ([]*domain.Question, error) {
	out := make([]*domain.Question, 0, len(drafts))
	for i, d := range drafts {
		opts, err := json.Marshal(d.Options)
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.Question{
			QuestionOrder:     i + 1,
			Type:              domain.QuestionTypeMCQ,
			Text:              d.Question,
			Options:           datatypes.JSON(opts),
			CorrectAnswer:     d.CorrectAnswer,
			Explanation:       d.Explanation,
			Concept:           d.Concept,
			Difficulty:        d.Difficulty,
			DistractorQuality: d.DistractorQuality,
		})
	}
	return out, nil
}
