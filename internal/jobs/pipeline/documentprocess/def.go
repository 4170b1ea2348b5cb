package documentprocess

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/ingestion"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/chunking"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/segment"
	"github.com/yungbote/docquiz-backend/internal/platform/llm"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/services"
)

const JobType = "document_process"

type Segmenter interface {
	Segment(ctx context.Context, text string) ([]segment.Span, error)
}

type QuizGenerator interface {
	GenerateForModule(ctx context.Context, moduleID uuid.UUID) (*domain.Quiz, error)
}

type Config struct {
	StageMaxAttempts int
	StageBackoff     time.Duration
	StageMaxBackoff  time.Duration

	ChunkWords   int
	ChunkOverlap int

	SummaryCharCap      int
	SummaryFallbackChar int
	SummaryTemperature  float64
	SummaryMaxTokens    int
}

func DefaultConfig() Config {
	return Config{
		StageMaxAttempts:    3,
		StageBackoff:        2 * time.Second,
		StageMaxBackoff:     30 * time.Second,
		ChunkWords:          chunking.DefaultWindowWords,
		ChunkOverlap:        chunking.DefaultOverlapWords,
		SummaryCharCap:      4000,
		SummaryFallbackChar: 200,
		SummaryTemperature:  0.3,
		SummaryMaxTokens:    256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StageMaxAttempts <= 0 {
		c.StageMaxAttempts = d.StageMaxAttempts
	}
	if c.StageBackoff < 0 {
		c.StageBackoff = 0
	}
	if c.StageMaxBackoff <= 0 {
		c.StageMaxBackoff = d.StageMaxBackoff
	}
	if c.ChunkWords <= 0 {
		c.ChunkWords = d.ChunkWords
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkWords {
		c.ChunkOverlap = d.ChunkOverlap
	}
	if c.SummaryCharCap <= 0 {
		c.SummaryCharCap = d.SummaryCharCap
	}
	if c.SummaryFallbackChar <= 0 {
		c.SummaryFallbackChar = d.SummaryFallbackChar
	}
	if c.SummaryTemperature <= 0 {
		c.SummaryTemperature = d.SummaryTemperature
	}
	if c.SummaryMaxTokens <= 0 {
		c.SummaryMaxTokens = d.SummaryMaxTokens
	}
	return c
}

// Pipeline runs one document from PENDING to COMPLETED or FAILED.
type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	repos     *repos.Repos
	storage   ingestion.Storage
	segmenter Segmenter
	embedder  llm.Embedder
	summaries llm.Generator
	quizzes   QuizGenerator
	notify    services.Notifier
	cfg       Config
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	r *repos.Repos,
	storage ingestion.Storage,
	segmenter Segmenter,
	embedder llm.Embedder,
	summaries llm.Generator,
	quizzes QuizGenerator,
	notify services.Notifier,
	cfg Config,
) *Pipeline {
	if notify == nil {
		notify = services.NewNopNotifier()
	}
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", JobType),
		repos:     r,
		storage:   storage,
		segmenter: segmenter,
		embedder:  embedder,
		summaries: summaries,
		quizzes:   quizzes,
		notify:    notify,
		cfg:       cfg.withDefaults(),
	}
}

func (p *Pipeline) Type() string { return JobType }
