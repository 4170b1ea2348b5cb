package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is the advisory, non-blocking variant. Capacity refills continuously.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	perSec   float64
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket allows capacity units per interval, starting full.
func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	b := &TokenBucket{
		capacity: float64(capacity),
		tokens:   float64(capacity),
		perSec:   float64(capacity) / interval.Seconds(),
		now:      time.Now,
	}
	b.last = b.now()
	return b
}

func (b *TokenBucket) Allow(cost int) bool {
	if cost < 1 {
		cost = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.perSec
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens < float64(cost) {
		return false
	}
	b.tokens -= float64(cost)
	return true
}

// Remaining is a snapshot, rounded down.
func (b *TokenBucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.tokens)
}
