package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/docquiz-backend/internal/modules/learning/embedding"
	"github.com/yungbote/docquiz-backend/internal/platform/gemini"
	"github.com/yungbote/docquiz-backend/internal/platform/llm"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/openai"
	"github.com/yungbote/docquiz-backend/internal/platform/vertex"
	"github.com/yungbote/docquiz-backend/internal/temporalx"
)

// Clients are the outbound connections. Each is optional except the text
// generator and the embedding backend.
type Clients struct {
	Redis        *goredis.Client
	Generator    llm.Generator
	EmbedBackend llm.Embedder
	Temporal     temporalsdkclient.Client

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, tcfg temporalx.Config) (*Clients, error) {
	log.Info("Wiring clients...", "llm_provider", cfg.LLM.Provider, "embed_provider", cfg.LLM.EmbedProvider)
	c := &Clients{}

	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			c.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		c.Redis = rdb
		c.closers = append(c.closers, rdb.Close)
	}

	var (
		oa openai.Client
		gm *gemini.Client
	)
	openaiClient := func() (openai.Client, error) {
		if oa != nil {
			return oa, nil
		}
		cl, err := openai.NewClient(log)
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		oa = cl
		return oa, nil
	}
	geminiClient := func() (*gemini.Client, error) {
		if gm != nil {
			return gm, nil
		}
		cl, err := gemini.NewClient(ctx, log)
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		gm = cl
		c.closers = append(c.closers, cl.Close)
		return gm, nil
	}

	switch cfg.LLM.Provider {
	case "openai":
		cl, err := openaiClient()
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Generator = cl
	case "vertex":
		cl, err := vertex.NewClient(ctx, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init vertex client: %w", err)
		}
		c.closers = append(c.closers, cl.Close)
		c.Generator = cl
	default:
		cl, err := geminiClient()
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Generator = cl
	}

	switch cfg.LLM.EmbedProvider {
	case "openai":
		cl, err := openaiClient()
		if err != nil {
			c.Close()
			return nil, err
		}
		c.EmbedBackend = cl
	case "gemini":
		cl, err := geminiClient()
		if err != nil {
			c.Close()
			return nil, err
		}
		c.EmbedBackend = cl
	default:
		log.Warn("using placeholder embeddings; similarity checks are lexical only")
		c.EmbedBackend = embedding.NewPlaceholder()
	}

	if tcfg.Enabled() {
		tc, err := temporalx.NewClient(ctx, log, tcfg)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init temporal client: %w", err)
		}
		c.Temporal = tc
		c.closers = append(c.closers, func() error { tc.Close(); return nil })
	}
	return c, nil
}

// Close releases clients in reverse order of creation.
func (c *Clients) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
