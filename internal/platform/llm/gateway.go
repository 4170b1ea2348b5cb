package llm

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/docquiz-backend/internal/observability"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/ratelimit"
)

// Generator is a single-turn text completion backend.
type Generator interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Gateway is the only path to a Generator: every call is charged against the
// shared limiter before it goes out.
type Gateway struct {
	log      *logger.Logger
	gen      Generator
	limiter  ratelimit.Limiter
	provider string
}

func NewGateway(log *logger.Logger, provider string, gen Generator, limiter ratelimit.Limiter) *Gateway {
	return &Gateway{
		log:      log.With("service", "LLMGateway", "provider", provider),
		gen:      gen,
		limiter:  limiter,
		provider: provider,
	}
}

// EstimateCost charges roughly four characters per token plus the completion
// budget, capped at what the limiter can ever grant.
func EstimateCost(prompt string, maxTokens int, capacity int) int {
	cost := len(prompt)/4 + maxTokens
	if cost < 1 {
		cost = 1
	}
	if capacity > 0 && cost > capacity {
		cost = capacity
	}
	return cost
}

func (g *Gateway) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	if g == nil || g.gen == nil {
		return "", fmt.Errorf("llm gateway not configured")
	}
	cost := EstimateCost(prompt, maxTokens, g.limiter.MaxCost())

	ctx, span := observability.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", g.provider),
		attribute.Int("llm.estimated_tokens", cost),
		attribute.Float64("llm.temperature", temperature),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	waitStart := time.Now()
	if err = g.limiter.Acquire(ctx, cost); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	m := observability.Current()
	m.ObserveLimiterWait(g.provider, time.Since(waitStart))

	start := time.Now()
	var out string
	out, err = g.gen.Complete(ctx, prompt, temperature, maxTokens)
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ObserveLLMRequest(g.provider, "complete", status, time.Since(start), cost)
	if err != nil {
		g.log.Warn("completion failed", "error", err, "estimated_tokens", cost)
		return "", err
	}
	return out, nil
}
