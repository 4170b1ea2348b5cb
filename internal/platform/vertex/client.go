package vertex

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/yungbote/docquiz-backend/internal/platform/envutil"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/rpcerr"
)

// Client generates text with Gemini models hosted on Vertex AI (ADC credentials).
type Client struct {
	log    *logger.Logger
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	projectID := envutil.String("VERTEX_PROJECT", envutil.String("GOOGLE_CLOUD_PROJECT", ""))
	region := envutil.String("VERTEX_REGION", "us-central1")
	if projectID == "" {
		return nil, fmt.Errorf("missing VERTEX_PROJECT")
	}
	c, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Client{
		log:    log.With("service", "VertexClient", "project", projectID, "region", region),
		client: c,
		model:  envutil.String("VERTEX_MODEL", "gemini-1.5-pro"),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	m := c.client.GenerativeModel(c.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](float32(temperature)),
	}
	if maxTokens > 0 {
		m.GenerationConfig.MaxOutputTokens = genai.Ptr[int32](int32(maxTokens))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", rpcerr.Wrap(fmt.Errorf("vertex generate: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("vertex: no candidates returned")
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("vertex: empty response")
	}
	return out.String(), nil
}
