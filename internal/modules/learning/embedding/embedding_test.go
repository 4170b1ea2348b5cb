package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type countingLimiter struct {
	mu    sync.Mutex
	costs []int
}

func (l *countingLimiter) Acquire(_ context.Context, cost int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.costs = append(l.costs, cost)
	return nil
}

func (l *countingLimiter) MaxCost() int { return 1000 }

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

type scriptedBackend struct {
	mu       sync.Mutex
	calls    int
	failures []error
	dims     int
}

// Embed puts the numeric value of each text at index 0.
func (b *scriptedBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.calls++
	var err error
	if len(b.failures) > 0 {
		err, b.failures = b.failures[0], b.failures[1:]
	}
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		n, _ := strconv.Atoi(t)
		v := make([]float32, b.dims)
		v[0] = float32(n)
		out[i] = v
	}
	return out, nil
}

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestEmbedBatchesAndPreservesOrder(t *testing.T) {
	lim := &countingLimiter{}
	be := &scriptedBackend{dims: 768}
	c := NewClient(logger.Nop(), "fake", be, lim, Config{Concurrency: 3})

	vecs, err := c.Embed(context.Background(), numbered(25))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 25 {
		t.Fatalf("vectors: want=25 got=%d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 768 || int(v[0]) != i {
			t.Fatalf("vector %d out of order or wrong size (len=%d head=%v)", i, len(v), v[0])
		}
	}
	if be.calls != 3 || len(lim.costs) != 3 {
		t.Fatalf("calls=%d acquires=%d, want 3 each", be.calls, len(lim.costs))
	}
	total := 0
	for _, c := range lim.costs {
		total += c
	}
	// 10+10+5 texts at 200 tokens each, first two batches capped at 1000
	if total != 1000+1000+1000 {
		t.Fatalf("limiter cost total=%d", total)
	}
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	be := &scriptedBackend{dims: 768, failures: []error{statusErr(503), statusErr(429)}}
	c := NewClient(logger.Nop(), "fake", be, &countingLimiter{}, Config{})
	vecs, err := c.Embed(context.Background(), numbered(2))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || be.calls != 3 {
		t.Fatalf("vectors=%d calls=%d", len(vecs), be.calls)
	}
}

func TestEmbedGivesUpAfterMaxRetries(t *testing.T) {
	be := &scriptedBackend{dims: 768, failures: []error{statusErr(500), statusErr(500), statusErr(500), statusErr(500)}}
	c := NewClient(logger.Nop(), "fake", be, &countingLimiter{}, Config{MaxRetries: 3})
	if _, err := c.Embed(context.Background(), numbered(1)); err == nil {
		t.Fatalf("expected error")
	}
	if be.calls != 3 {
		t.Fatalf("calls: want=3 got=%d", be.calls)
	}
}

func TestEmbedDoesNotRetryPermanentErrors(t *testing.T) {
	be := &scriptedBackend{dims: 768, failures: []error{statusErr(400)}}
	c := NewClient(logger.Nop(), "fake", be, &countingLimiter{}, Config{})
	if _, err := c.Embed(context.Background(), numbered(1)); err == nil {
		t.Fatalf("expected error")
	}
	if be.calls != 1 {
		t.Fatalf("calls: want=1 got=%d", be.calls)
	}
}

func TestEmbedRejectsWrongDimensions(t *testing.T) {
	be := &scriptedBackend{dims: 1536}
	c := NewClient(logger.Nop(), "fake", be, &countingLimiter{}, Config{})
	_, err := c.Embed(context.Background(), numbered(1))
	if !errors.Is(err, ErrDimensions) {
		t.Fatalf("want ErrDimensions, got %v", err)
	}
}

func TestOfflineBackendSkipsLimiter(t *testing.T) {
	lim := &countingLimiter{}
	c := NewClient(logger.Nop(), "placeholder", NewPlaceholder(), lim, Config{})
	vecs, err := c.Embed(context.Background(), numbered(25))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 25 {
		t.Fatalf("vectors: want=25 got=%d", len(vecs))
	}
	if len(lim.costs) != 0 {
		t.Fatalf("offline backend acquired the limiter %d times", len(lim.costs))
	}
}

func TestPlaceholderDeterministicAndNormalized(t *testing.T) {
	p := NewPlaceholder()
	a, _ := p.Embed(context.Background(), []string{"Mitochondria produce ATP", "mitochondria produce atp", "Photosynthesis in plants", ""})
	if len(a) != 4 || len(a[0]) != 768 {
		t.Fatalf("shape: %d x %d", len(a), len(a[0]))
	}
	if sim := Cosine(a[0], a[1]); sim < 0.9999 {
		t.Fatalf("case-insensitive texts should match, cosine=%f", sim)
	}
	if sim := Cosine(a[0], a[2]); sim > 0.9 {
		t.Fatalf("unrelated texts too similar, cosine=%f", sim)
	}
	if sim := Cosine(a[3], a[3]); sim < 0.9999 {
		t.Fatalf("empty text should still be a unit vector, cosine=%f", sim)
	}
	b, _ := p.Embed(context.Background(), []string{"Mitochondria produce ATP"})
	for i := range b[0] {
		if b[0][i] != a[0][i] {
			t.Fatalf("placeholder not deterministic at %d", i)
		}
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal: %f", got)
	}
	if got := Cosine([]float32{2, 0}, []float32{5, 0}); got < 0.9999 {
		t.Fatalf("parallel: %f", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Fatalf("mismatched lengths: %f", got)
	}
}
