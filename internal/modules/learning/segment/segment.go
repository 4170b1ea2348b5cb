package segment

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/yungbote/docquiz-backend/internal/modules/learning/prompts"
	"github.com/yungbote/docquiz-backend/internal/platform/llm"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

// Span is one module candidate. Offsets are rune indices into the
// segmented text, end exclusive.
type Span struct {
	Title       string
	Summary     string
	StartOffset int
	EndOffset   int
	WordCount   int
}

type Config struct {
	MinWords      int
	MaxWords      int
	PromptCharCap int
	Temperature   float64
	MaxTokens     int
}

func DefaultConfig() Config {
	return Config{
		MinWords:      500,
		MaxWords:      3000,
		PromptCharCap: 15000,
		Temperature:   0.3,
		MaxTokens:     4096,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinWords <= 0 {
		c.MinWords = d.MinWords
	}
	if c.MaxWords <= 0 {
		c.MaxWords = d.MaxWords
	}
	if c.MaxWords < c.MinWords {
		c.MaxWords = c.MinWords
	}
	if c.PromptCharCap <= 0 {
		c.PromptCharCap = d.PromptCharCap
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	return c
}

type Segmenter struct {
	log *logger.Logger
	gen llm.Generator
	cfg Config
}

func New(log *logger.Logger, gen llm.Generator, cfg Config) *Segmenter {
	return &Segmenter{
		log: log.With("component", "Segmenter"),
		gen: gen,
		cfg: cfg.withDefaults(),
	}
}

type candidate struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	StartOffset *int   `json:"start_offset"`
	EndOffset   *int   `json:"end_offset"`
	StartIndex  *int   `json:"start_index"`
	EndIndex    *int   `json:"end_index"`
}

func (c candidate) bounds() (int, int) {
	start, end := 0, 0
	switch {
	case c.StartOffset != nil:
		start = *c.StartOffset
	case c.StartIndex != nil:
		start = *c.StartIndex
	}
	switch {
	case c.EndOffset != nil:
		end = *c.EndOffset
	case c.EndIndex != nil:
		end = *c.EndIndex
	}
	return start, end
}

// Segment asks the generator for module boundaries over a capped prefix of
// text and keeps the candidates that fall inside the word range. Output
// that cannot be used degrades to Fallback. Only a failed generator call
// is returned as an error.
func (s *Segmenter) Segment(ctx context.Context, text string) ([]Span, error) {
	runes := []rune(text)
	if len(strings.Fields(text)) == 0 {
		return nil, nil
	}
	if s.gen == nil {
		return Fallback(text, s.cfg.MinWords, s.cfg.MaxWords), nil
	}

	prefix := runes
	if len(prefix) > s.cfg.PromptCharCap {
		prefix = prefix[:s.cfg.PromptCharCap]
	}
	p, err := prompts.Build(prompts.PromptModuleBoundaries, prompts.Input{
		DocumentText: string(prefix),
		MinWords:     s.cfg.MinWords,
		MaxWords:     s.cfg.MaxWords,
	})
	if err != nil {
		return nil, err
	}
	raw, err := s.gen.Complete(ctx, p.Text(), s.cfg.Temperature, s.cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("module boundaries: %w", err)
	}

	spans := s.parse(raw, runes)
	if len(spans) == 0 {
		s.log.Info("boundary output unusable; using fallback split", "text_runes", len(runes))
		return Fallback(text, s.cfg.MinWords, s.cfg.MaxWords), nil
	}
	return spans, nil
}

func (s *Segmenter) parse(raw string, runes []rune) []Span {
	var cands []candidate
	if err := llm.DecodeJSON(raw, &cands); err != nil {
		s.log.Debug("boundary json rejected", "error", err)
		return nil
	}
	out := make([]Span, 0, len(cands))
	for idx, c := range cands {
		start, end := ClampBounds(c.bounds())
		if start >= len(runes) {
			continue
		}
		if end > len(runes) {
			end = len(runes)
		}
		words := len(strings.Fields(string(runes[start:end])))
		if words < s.cfg.MinWords || words > s.cfg.MaxWords {
			continue
		}
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = fmt.Sprintf("Module %d", idx+1)
		}
		out = append(out, Span{
			Title:       title,
			Summary:     strings.TrimSpace(c.Summary),
			StartOffset: start,
			EndOffset:   end,
			WordCount:   words,
		})
	}
	return out
}

// ClampBounds forces start >= 0 and end > start.
func ClampBounds(start, end int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		end = start + 1
	}
	return start, end
}

// Fallback packs words greedily into spans of at most maxWords. A trailing
// remainder under minWords is merged into the previous span. Spans are
// contiguous and together cover the whole text.
func Fallback(text string, minWords, maxWords int) []Span {
	if maxWords <= 0 {
		maxWords = DefaultConfig().MaxWords
	}
	runes := []rune(text)
	starts := wordStarts(runes)
	n := len(starts)
	if n == 0 {
		return nil
	}

	type group struct{ from, to int }
	var groups []group
	for from := 0; from < n; {
		to := from + maxWords
		if to > n {
			to = n
		}
		if to-from < minWords && len(groups) > 0 {
			groups[len(groups)-1].to = to
			break
		}
		groups = append(groups, group{from, to})
		from = to
	}

	out := make([]Span, 0, len(groups))
	for i, g := range groups {
		start := 0
		if i > 0 {
			start = starts[g.from]
		}
		end := len(runes)
		if i < len(groups)-1 {
			end = starts[g.to]
		}
		out = append(out, Span{
			Title:       fmt.Sprintf("Module %d", i+1),
			StartOffset: start,
			EndOffset:   end,
			WordCount:   g.to - g.from,
		})
	}
	return out
}

// Text returns the slice of text a span covers, clipped to its bounds.
func Text(text string, sp Span) string {
	runes := []rune(text)
	start, end := sp.StartOffset, sp.EndOffset
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

func wordStarts(runes []rune) []int {
	var out []int
	inWord := false
	for i, r := range runes {
		space := unicode.IsSpace(r)
		if !space && !inWord {
			out = append(out, i)
		}
		inWord = !space
	}
	return out
}
