package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/yungbote/docquiz-backend/internal/domain"
)

// Placeholder is an offline embedder. It hashes lowercase word unigrams and
// bigrams into a fixed number of buckets and L2-normalizes the result, so
// identical texts map to identical vectors and texts sharing vocabulary land
// close together. It has no semantic model behind it.
type Placeholder struct {
	Dims int
}

func NewPlaceholder() *Placeholder {
	return &Placeholder{Dims: domain.EmbeddingDimensions}
}

func (p *Placeholder) Offline() bool { return true }

func (p *Placeholder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dims := p.Dims
	if dims <= 0 {
		dims = domain.EmbeddingDimensions
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t, dims)
	}
	return out, nil
}

func hashVector(text string, dims int) []float32 {
	vec := make([]float64, dims)
	toks := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	add := func(feature string, weight float64) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(dims))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vec[idx] += weight
	}
	for i, tok := range toks {
		add(tok, 1)
		if i > 0 {
			add(toks[i-1]+" "+tok, 0.5)
		}
	}

	out := make([]float32, dims)
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		// no tokens: a fixed unit vector keeps cosine defined
		out[0] = 1
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
