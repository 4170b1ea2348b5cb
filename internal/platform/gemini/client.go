package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/yungbote/docquiz-backend/internal/platform/envutil"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/rpcerr"
)

const (
	DefaultModel      = "gemini-1.5-flash"
	DefaultEmbedModel = "embedding-001"
	// embedding-001 always returns 768 dimensions.
	EmbedDimensions = 768
)

// Client talks to the Gemini API with an API key.
type Client struct {
	log        *logger.Logger
	client     *genai.Client
	model      string
	embedModel string
}

func NewClient(ctx context.Context, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{
		log:        log.With("service", "GeminiClient"),
		client:     c,
		model:      envutil.String("GEMINI_MODEL", DefaultModel),
		embedModel: envutil.String("GEMINI_EMBED_MODEL", DefaultEmbedModel),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	// A fresh model handle per call; GenerativeModel settings are not safe to share.
	m := c.client.GenerativeModel(c.model)
	m.SetTemperature(float32(temperature))
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", rpcerr.Wrap(fmt.Errorf("gemini generate: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: no candidates returned")
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return out.String(), nil
}

func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	em := c.client.EmbeddingModel(c.embedModel)
	batch := em.NewBatch()
	for _, s := range inputs {
		if strings.TrimSpace(s) == "" {
			s = " "
		}
		batch.AddContent(genai.Text(s))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, rpcerr.Wrap(fmt.Errorf("gemini embed: %w", err))
	}
	if res == nil || len(res.Embeddings) != len(inputs) {
		got := 0
		if res != nil {
			got = len(res.Embeddings)
		}
		return nil, fmt.Errorf("gemini embed: requested=%d returned=%d", len(inputs), got)
	}
	out := make([][]float32, len(inputs))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini embed: missing vector %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}
