package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yungbote/docquiz-backend/internal/platform/httpx"
)

// Limiter gates every outbound call to the generation and embedding services.
type Limiter interface {
	// Acquire blocks until one call costing cost tokens fits under the rolling window,
	// then records it.
	Acquire(ctx context.Context, cost int) error
	// MaxCost is the largest cost a single Acquire can ever be granted.
	MaxCost() int
}

var ErrWaitExceeded = errors.New("ratelimit: gave up waiting for capacity")

const (
	DefaultRPM      = 15
	DefaultTPM      = 1_000_000
	DefaultWindow   = 60 * time.Second
	DefaultMaxWaits = 64
)

type Config struct {
	RPM      int
	TPM      int
	Window   time.Duration
	MaxWaits int
}

func (c Config) withDefaults() Config {
	if c.RPM <= 0 {
		c.RPM = DefaultRPM
	}
	if c.TPM <= 0 {
		c.TPM = DefaultTPM
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxWaits <= 0 {
		c.MaxWaits = DefaultMaxWaits
	}
	return c
}

type Option func(*Window)

// WithClock swaps the time source and the sleeper, mostly for tests.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(w *Window) {
		if now != nil {
			w.now = now
		}
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

type spend struct {
	at   time.Time
	cost int
}

// Window is the in-process sliding-window limiter: two independent rolling counters
// (calls and tokens) over the same window.
type Window struct {
	cfg Config

	mu     sync.Mutex
	calls  []time.Time
	tokens []spend

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewWindow(cfg Config, opts ...Option) *Window {
	w := &Window{
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		sleep: httpx.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Window) MaxCost() int { return w.cfg.TPM }

func (w *Window) Acquire(ctx context.Context, cost int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cost = clampCost(cost, w.cfg.TPM)
	for i := 0; i < w.cfg.MaxWaits; i++ {
		wait, ok := w.tryRecord(cost)
		if ok {
			return nil
		}
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return ErrWaitExceeded
}

// tryRecord records the call when both counters have room, otherwise it returns how
// long until the oldest blocking entry leaves the window.
func (w *Window) tryRecord(cost int) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	var wait time.Duration
	if n := len(w.calls); n >= w.cfg.RPM {
		wait = w.calls[n-w.cfg.RPM].Add(w.cfg.Window).Sub(now)
	}

	used := 0
	for _, s := range w.tokens {
		used += s.cost
	}
	if need := used + cost - w.cfg.TPM; need > 0 {
		freed := 0
		for _, s := range w.tokens {
			freed += s.cost
			if freed >= need {
				if d := s.at.Add(w.cfg.Window).Sub(now); d > wait {
					wait = d
				}
				break
			}
		}
	}

	if wait > 0 {
		return wait, false
	}
	w.calls = append(w.calls, now)
	w.tokens = append(w.tokens, spend{at: now, cost: cost})
	return 0, true
}

func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.cfg.Window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	w.calls = w.calls[i:]
	j := 0
	for j < len(w.tokens) && !w.tokens[j].at.After(cutoff) {
		j++
	}
	w.tokens = w.tokens[j:]
}

func clampCost(cost, max int) int {
	if cost < 1 {
		return 1
	}
	if cost > max {
		return max
	}
	return cost
}
