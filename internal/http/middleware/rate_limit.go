package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docquiz-backend/internal/http/response"
	"github.com/yungbote/docquiz-backend/internal/platform/ctxutil"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/platform/ratelimit"
)

type RateLimitConfig struct {
	// Limit requests per Window for one caller.
	Limit  int
	Window time.Duration
	// Redis shares the counter across API replicas; nil keeps it in process.
	Redis     *goredis.Client
	KeyPrefix string
	Log       *logger.Logger
}

// RateLimit throttles callers keyed by owner id, falling back to client IP.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "docquiz:rl:"
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	var allow func(c *gin.Context, key string) (remaining int, ok bool)
	if cfg.Redis != nil {
		allow = redisCounter(cfg)
	} else {
		allow = newBucketSet(cfg.Limit, cfg.Window).allow
	}

	return func(c *gin.Context) {
		remaining, ok := allow(c, callerKey(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited",
				fmt.Errorf("limit of %d uploads per %s exceeded", cfg.Limit, cfg.Window))
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if owner := ctxutil.OwnerID(c.Request.Context()); owner != uuid.Nil {
		return "owner:" + owner.String()
	}
	return "ip:" + c.ClientIP()
}

// Fixed window counter; a Redis error lets the request through.
func redisCounter(cfg RateLimitConfig) func(*gin.Context, string) (int, bool) {
	return func(c *gin.Context, key string) (int, bool) {
		ctx := c.Request.Context()
		k := cfg.KeyPrefix + key
		count, err := cfg.Redis.Incr(ctx, k).Result()
		if err != nil {
			cfg.Log.Warn("rate limit counter unavailable", "error", err)
			return cfg.Limit, true
		}
		if count == 1 {
			cfg.Redis.Expire(ctx, k, cfg.Window)
		}
		remaining := cfg.Limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		return remaining, count <= int64(cfg.Limit)
	}
}

type bucketSet struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	buckets  map[string]*idleBucket
	lastScan time.Time
}

type idleBucket struct {
	bucket   *ratelimit.TokenBucket
	lastSeen time.Time
}

func newBucketSet(limit int, window time.Duration) *bucketSet {
	return &bucketSet{
		limit:    limit,
		window:   window,
		buckets:  make(map[string]*idleBucket),
		lastScan: time.Now(),
	}
}

func (s *bucketSet) allow(_ *gin.Context, key string) (int, bool) {
	now := time.Now()
	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &idleBucket{bucket: ratelimit.NewTokenBucket(s.limit, s.window)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	if now.Sub(s.lastScan) > s.window {
		// A bucket idle for a whole window is full again and can be dropped.
		for k, v := range s.buckets {
			if now.Sub(v.lastSeen) > s.window {
				delete(s.buckets, k)
			}
		}
		s.lastScan = now
	}
	s.mu.Unlock()

	ok = b.bucket.Allow(1)
	return b.bucket.Remaining(), ok
}
