package quiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/embedding"
	"github.com/yungbote/docquiz-backend/internal/platform/llm"
)

const DefaultSimilarityThreshold = 0.9

const (
	ReasonQuestionCount     = "expected 5 questions"
	ReasonDuplicateConcepts = "duplicate concepts"
	ReasonInvalidOptions    = "invalid options or correct answer"
	ReasonSimilarDistractor = "distractor too similar to correct answer"
	ReasonInverseOption     = "contains inverse option"
)

type Result struct {
	Accepted  bool
	Reason    string
	Questions []Draft
}

// Validator applies the question-set quality rules in order and stops at the
// first failure.
type Validator struct {
	emb       llm.Embedder
	threshold float64
}

func NewValidator(emb llm.Embedder, threshold float64) *Validator {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Validator{emb: emb, threshold: threshold}
}

func (v *Validator) Validate(ctx context.Context, qs []Draft) (Result, error) {
	reject := func(reason string) (Result, error) {
		return Result{Accepted: false, Reason: reason, Questions: qs}, nil
	}

	if len(qs) != domain.QuestionsPerQuiz {
		return reject(ReasonQuestionCount)
	}

	seen := make(map[string]bool, len(qs))
	for _, q := range qs {
		key := strings.ToLower(strings.TrimSpace(q.Concept))
		if seen[key] {
			return reject(ReasonDuplicateConcepts)
		}
		seen[key] = true
	}

	// Options, similarity and inverse checks run question by question. Only
	// the questions ahead of the first bad option list are embedded, in one
	// batch.
	correctIdx := make([]int, 0, len(qs))
	for _, q := range qs {
		idx := indexOf(q.Options, q.CorrectAnswer)
		if len(q.Options) != domain.OptionsPerQuestion || idx < 0 {
			break
		}
		correctIdx = append(correctIdx, idx)
	}
	shaped := len(correctIdx)

	texts := make([]string, 0, shaped*domain.OptionsPerQuestion)
	for _, q := range qs[:shaped] {
		texts = append(texts, q.Options...)
	}
	var vecs [][]float32
	if len(texts) > 0 {
		var err error
		vecs, err = v.emb.Embed(ctx, texts)
		if err != nil {
			return Result{Questions: qs}, fmt.Errorf("embed options: %w", err)
		}
		if len(vecs) != len(texts) {
			return Result{Questions: qs}, fmt.Errorf("embed options: requested=%d returned=%d", len(texts), len(vecs))
		}
	}

	scored := make([]Draft, len(qs))
	for i, q := range qs {
		if i >= shaped {
			return reject(ReasonInvalidOptions)
		}
		base := i * domain.OptionsPerQuestion
		correct := vecs[base+correctIdx[i]]
		maxSim := 0.0
		for j := range q.Options {
			if j == correctIdx[i] {
				continue
			}
			sim := embedding.Cosine(vecs[base+j], correct)
			if sim > v.threshold {
				return reject(ReasonSimilarDistractor)
			}
			if sim > maxSim {
				maxSim = sim
			}
		}
		if HasInverseOption(q) {
			return reject(ReasonInverseOption)
		}
		q.DistractorQuality = 1 - maxSim
		scored[i] = q
	}
	return Result{Accepted: true, Questions: scored}, nil
}

// HasInverseOption reports a distractor of the form "not <correct answer>".
func HasInverseOption(q Draft) bool {
	correct := strings.ToLower(strings.TrimSpace(q.CorrectAnswer))
	for _, o := range q.Options {
		text := strings.ToLower(strings.TrimSpace(o))
		if strings.HasPrefix(text, "not ") && strings.TrimSpace(text[4:]) == correct {
			return true
		}
	}
	return false
}

func indexOf(options []string, s string) int {
	for i, o := range options {
		if o == s {
			return i
		}
	}
	return -1
}
