package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docquiz-backend/internal/platform/httpx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

// acquireScript prunes both sorted sets, then either records the call and returns 0 or
// returns the milliseconds until the oldest blocking entry expires. Token members are
// "<id>:<cost>".
var acquireScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local rpm = tonumber(ARGV[3])
local tpm = tonumber(ARGV[4])
local cost = tonumber(ARGV[5])
local floor = now - window
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', floor)
redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', floor)

local wait = 0
local n = redis.call('ZCARD', KEYS[1])
if n >= rpm then
  local oldest = redis.call('ZRANGE', KEYS[1], n - rpm, n - rpm, 'WITHSCORES')
  wait = tonumber(oldest[2]) + window - now
end

local entries = redis.call('ZRANGE', KEYS[2], 0, -1, 'WITHSCORES')
local used = 0
for i = 1, #entries, 2 do
  used = used + tonumber(string.match(entries[i], ':(%d+)$'))
end
if used + cost > tpm then
  local need = used + cost - tpm
  local freed = 0
  for i = 1, #entries, 2 do
    freed = freed + tonumber(string.match(entries[i], ':(%d+)$'))
    if freed >= need then
      local w = tonumber(entries[i + 1]) + window - now
      if w > wait then wait = w end
      break
    end
  end
end

if wait > 0 then
  return wait
end
redis.call('ZADD', KEYS[1], now, ARGV[6])
redis.call('ZADD', KEYS[2], now, ARGV[6] .. ':' .. cost)
redis.call('PEXPIRE', KEYS[1], window)
redis.call('PEXPIRE', KEYS[2], window)
return 0
`)

// RedisWindow shares one rolling window across processes.
type RedisWindow struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	cfg    Config
	now    func() time.Time
}

func NewRedisWindow(log *logger.Logger, rdb *goredis.Client, prefix string, cfg Config) (*RedisWindow, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "docquiz:llm"
	}
	return &RedisWindow{
		log:    log.With("component", "RedisWindow"),
		rdb:    rdb,
		prefix: prefix,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}, nil
}

func (r *RedisWindow) MaxCost() int { return r.cfg.TPM }

func (r *RedisWindow) Acquire(ctx context.Context, cost int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cost = clampCost(cost, r.cfg.TPM)
	keys := []string{r.prefix + ":calls", r.prefix + ":tokens"}
	for i := 0; i < r.cfg.MaxWaits; i++ {
		waitMs, err := acquireScript.Run(ctx, r.rdb, keys,
			r.now().UnixMilli(),
			r.cfg.Window.Milliseconds(),
			r.cfg.RPM,
			r.cfg.TPM,
			cost,
			uuid.NewString(),
		).Int64()
		if err != nil {
			return fmt.Errorf("ratelimit acquire: %w", err)
		}
		if waitMs <= 0 {
			return nil
		}
		wait := time.Duration(waitMs) * time.Millisecond
		r.log.Debug("rate limit window full; waiting", "wait", wait.String(), "cost", cost)
		if err := httpx.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return ErrWaitExceeded
}
