package app

import (
	"context"
	"fmt"

	"github.com/yungbote/docquiz-backend/internal/data/db"
	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/ingestion"
	"github.com/yungbote/docquiz-backend/internal/jobs/pipeline/documentprocess"
	"github.com/yungbote/docquiz-backend/internal/jobs/worker"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/embedding"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/quiz"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/segment"
	"github.com/yungbote/docquiz-backend/internal/platform/llm"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/ratelimit"
	"github.com/yungbote/docquiz-backend/internal/realtime"
	"github.com/yungbote/docquiz-backend/internal/realtime/bus"
	"github.com/yungbote/docquiz-backend/internal/services"
	"github.com/yungbote/docquiz-backend/internal/temporalx"
	"github.com/yungbote/docquiz-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Limiter   ratelimit.Limiter
	Gateway   *llm.Gateway
	Embedder  *embedding.Client
	Segmenter *segment.Segmenter
	Quizzes   *quiz.Generator

	Bus      bus.Bus
	Hub      *realtime.Hub
	Notifier services.Notifier
	Storage  ingestion.Storage

	Pipeline *documentprocess.Pipeline
	// Worker is set when jobs run in process; TemporalWorker when they run
	// through Temporal. Dispatcher is whichever of the two the API submits to.
	Worker         *worker.Worker
	TemporalWorker *temporalworker.Runner
	Dispatcher     services.Dispatcher

	Documents services.DocumentService
	Status    services.StatusService
	Quiz      services.QuizService
}

func wireServices(
	ctx context.Context,
	log *logger.Logger,
	cfg Config,
	tcfg temporalx.Config,
	dbs *db.Service,
	r *repos.Repos,
	clients *Clients,
) (*Services, error) {
	log.Info("Wiring services...")
	s := &Services{}

	limiter, err := wireLimiter(log, cfg, clients)
	if err != nil {
		return nil, err
	}
	s.Limiter = limiter
	s.Gateway = llm.NewGateway(log, cfg.LLM.Provider, clients.Generator, limiter)
	s.Embedder = embedding.NewClient(log, cfg.LLM.EmbedProvider, clients.EmbedBackend, limiter, embedding.Config{
		MaxRetries: cfg.LLM.EmbedMaxRetries,
	})
	s.Segmenter = segment.New(log, s.Gateway, segment.Config{})

	if clients.Redis != nil {
		b, err := bus.NewRedisBus(log, clients.Redis, cfg.Redis.Channel)
		if err != nil {
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		s.Bus = b
	} else {
		s.Bus = bus.NewLocalBus()
	}
	s.Hub = realtime.NewHub(log)
	if err := s.Bus.StartForwarder(ctx, s.Hub.Broadcast); err != nil {
		return nil, fmt.Errorf("start bus forwarder: %w", err)
	}
	s.Notifier = services.NewNotifier(log, s.Bus)

	validator := quiz.NewValidator(s.Embedder, cfg.LLM.SimilarityCutoff)
	s.Quizzes = quiz.NewGenerator(log, s.Gateway, validator, r.Modules, r.ModuleChunks, r.Quizzes, s.Notifier, quiz.Config{})

	store, err := resolveObjectStore(ctx, log, cfg.Storage)
	if err != nil {
		return nil, err
	}
	s.Storage = ingestion.NewStorage(log, store, cfg.Upload.MaxBytes)

	s.Pipeline = documentprocess.New(dbs.DB(), log, r, s.Storage, s.Segmenter, s.Embedder, s.Gateway, s.Quizzes, s.Notifier, documentprocess.Config{
		StageMaxAttempts: cfg.Pipeline.StageMaxAttempts,
		StageBackoff:     cfg.Pipeline.StageBackoff,
		ChunkWords:       cfg.Pipeline.ChunkWords,
		ChunkOverlap:     cfg.Pipeline.ChunkOverlap,
	})

	if clients.Temporal != nil {
		s.Dispatcher = temporalx.NewDispatcher(clients.Temporal, log, tcfg)
		if cfg.RunsWorker() {
			tw, err := temporalworker.NewRunner(log, clients.Temporal, tcfg, s.Pipeline)
			if err != nil {
				return nil, err
			}
			s.TemporalWorker = tw
		}
	} else {
		// Without Temporal the job row is the queue. An API-only process
		// still builds the pool so Dispatch has somewhere to go, but never
		// starts it.
		s.Worker = worker.NewWorker(dbs.DB(), log, r, s.Pipeline, s.Notifier, worker.Config{
			Concurrency:  cfg.Pipeline.WorkerConcurrency,
			PollInterval: cfg.Pipeline.PollInterval,
		})
		s.Dispatcher = s.Worker
	}

	s.Documents = services.NewDocumentService(dbs.DB(), log, r, s.Storage, s.Dispatcher, s.Notifier, cfg.Upload.MaxBytes)
	s.Status = services.NewStatusService(log, r)
	s.Quiz = services.NewQuizService(log, r, s.Quizzes)
	return s, nil
}

// wireLimiter shares one window across every model call in the process, or
// across the fleet when the redis backend is selected.
func wireLimiter(log *logger.Logger, cfg Config, clients *Clients) (ratelimit.Limiter, error) {
	rl := ratelimit.Config{RPM: cfg.LLM.RPM, TPM: cfg.LLM.TPM}
	if cfg.LLM.RateLimitBackend == "redis" {
		if clients.Redis == nil {
			return nil, fmt.Errorf("RATE_LIMIT_BACKEND=redis requires a redis connection")
		}
		return ratelimit.NewRedisWindow(log, clients.Redis, "docquiz:llm:"+cfg.LLM.Provider, rl)
	}
	return ratelimit.NewWindow(rl), nil
}

// start launches whichever job runner this process owns.
func (s *Services) start(ctx context.Context, cfg Config) error {
	if !cfg.RunsWorker() {
		return nil
	}
	if s.TemporalWorker != nil {
		return s.TemporalWorker.Start(ctx)
	}
	if s.Worker != nil {
		s.Worker.Start(ctx)
	}
	return nil
}

func (s *Services) wait() {
	if s != nil && s.Worker != nil {
		s.Worker.Wait()
	}
}
