package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/observability"
	"github.com/yungbote/docquiz-backend/internal/platform/httpx"
	"github.com/yungbote/docquiz-backend/internal/platform/llm"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/ratelimit"
)

var ErrDimensions = errors.New("embedding: unexpected vector dimensions")

type Config struct {
	BatchSize     int
	TokensPerText int
	MaxRetries    int
	Backoff       time.Duration
	MaxBackoff    time.Duration
	Concurrency   int
	Dimensions    int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:     10,
		TokensPerText: 200,
		MaxRetries:    3,
		Backoff:       time.Second,
		MaxBackoff:    20 * time.Second,
		Concurrency:   2,
		Dimensions:    domain.EmbeddingDimensions,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.TokensPerText <= 0 {
		c.TokensPerText = d.TokensPerText
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Dimensions <= 0 {
		c.Dimensions = d.Dimensions
	}
	return c
}

// Offline is implemented by backends that never leave the process. Calls
// to them skip the shared limiter.
type Offline interface {
	Offline() bool
}

// Client is the rate-limited, batched path to an embedding backend.
type Client struct {
	log      *logger.Logger
	backend  llm.Embedder
	limiter  ratelimit.Limiter
	provider string
	offline  bool
	cfg      Config
}

func NewClient(log *logger.Logger, provider string, backend llm.Embedder, limiter ratelimit.Limiter, cfg Config) *Client {
	c := &Client{
		log:      log.With("service", "EmbeddingClient", "provider", provider),
		backend:  backend,
		limiter:  limiter,
		provider: provider,
		cfg:      cfg.withDefaults(),
	}
	if o, ok := backend.(Offline); ok && o.Offline() {
		c.offline = true
	}
	return c
}

func (c *Client) Dimensions() int { return c.cfg.Dimensions }

// Embed returns one vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	ctx, span := observability.StartSpan(ctx, "embedding.embed",
		attribute.String("llm.provider", c.provider),
		attribute.Int("embedding.texts", len(texts)),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for from := 0; from < len(texts); from += c.cfg.BatchSize {
		from := from
		to := from + c.cfg.BatchSize
		if to > len(texts) {
			to = len(texts)
		}
		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, texts[from:to])
			if err != nil {
				return err
			}
			copy(out[from:to], vecs)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	cost := len(texts) * c.cfg.TokensPerText
	if capacity := c.limiter.MaxCost(); capacity > 0 && cost > capacity {
		cost = capacity
	}
	m := observability.Current()

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := httpx.JitterSleep(httpx.Backoff(c.cfg.Backoff, attempt-1, c.cfg.MaxBackoff))
			if err := httpx.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		if !c.offline {
			waitStart := time.Now()
			if err := c.limiter.Acquire(ctx, cost); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
			m.ObserveLimiterWait(c.provider, time.Since(waitStart))
		}

		start := time.Now()
		vecs, err := c.backend.Embed(ctx, texts)
		if err == nil {
			err = c.check(texts, vecs)
			if err != nil {
				m.ObserveLLMRequest(c.provider, "embed", "invalid", time.Since(start), cost)
				return nil, err
			}
			m.ObserveLLMRequest(c.provider, "embed", "ok", time.Since(start), cost)
			return vecs, nil
		}
		m.ObserveLLMRequest(c.provider, "embed", "error", time.Since(start), cost)
		lastErr = err
		if !httpx.IsRetryableError(err) {
			break
		}
		c.log.Warn("embed batch failed; retrying", "attempt", attempt+1, "texts", len(texts), "error", err)
	}
	return nil, fmt.Errorf("embed batch of %d: %w", len(texts), lastErr)
}

func (c *Client) check(texts []string, vecs [][]float32) error {
	if len(vecs) != len(texts) {
		return fmt.Errorf("embedding count mismatch: requested=%d returned=%d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != c.cfg.Dimensions {
			return fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensions, i, len(v), c.cfg.Dimensions)
		}
	}
	return nil
}
