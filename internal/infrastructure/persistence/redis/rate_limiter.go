package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// slidingWindow 在一个脚本内完成清理、计数、登记，避免并发请求同时越过上限。
// 返回 {allowed, remaining, retry_after_ms}
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
if used >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local wait = window
  if oldest[2] then
    wait = tonumber(oldest[2]) + window - now
  end
  return {0, 0, wait}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, limit - used - 1, 0}
`)

// Quota 一次限流判定的结果
type Quota struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter 基于有序集合的滑动窗口限流
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Take 尝试占用一个名额
func (l *RateLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Quota, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Take")
	defer span.End()
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
	)

	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	res, err := slidingWindow.Run(ctx, l.client.rdb, []string{key}, now, window.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return Quota{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Quota{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	q := Quota{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}
	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", q.Allowed),
		attribute.Int("ratelimit.remaining", q.Remaining),
	)
	return q, nil
}

// RateLimitKey 按作用域与客户端区分计数
func RateLimitKey(scope, clientID string) string {
	return Key("ratelimit", scope, clientID)
}
