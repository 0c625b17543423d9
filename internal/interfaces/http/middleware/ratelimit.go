package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/infrastructure/persistence/redis"
	"roguelike-forge-api/internal/interfaces/http/dto"
	"roguelike-forge-api/pkg/errors"
	"roguelike-forge-api/pkg/logger"
	"roguelike-forge-api/pkg/metrics"
)

// RateLimitConfig 单个作用域的配额
type RateLimitConfig struct {
	Enabled bool
	// Scope 区分不同配额，例如 api / generation
	Scope  string
	Limit  int
	Window time.Duration
}

// RateLimiter 由 redis.RateLimiter 实现
type RateLimiter interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (redis.Quota, error)
}

func (cfg RateLimitConfig) withDefaults() RateLimitConfig {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Scope == "" {
		cfg.Scope = "api"
	}
	return cfg
}

// RateLimit 按客户端 IP 限流；限流器不可用时放行
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	cfg = cfg.withDefaults()
	limit := strconv.Itoa(cfg.Limit)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		q, err := limiter.Take(ctx, redis.RateLimitKey(cfg.Scope, c.ClientIP()), cfg.Limit, cfg.Window)
		if err != nil {
			logger.Warn(ctx, "rate limiter unavailable", "scope", cfg.Scope, "error", err.Error())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
		if q.Allowed {
			c.Next()
			return
		}

		metrics.RateLimitHits.WithLabelValues(routeLabel(c)).Inc()
		wait := q.RetryAfter
		if wait <= 0 {
			wait = cfg.Window
		}
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.Abort()
		dto.ErrorWithDetail(c, http.StatusTooManyRequests, "rate limit exceeded", &dto.ErrorDetail{
			ErrorCode: string(errors.CodeTooManyRequests),
			Details:   cfg.Scope,
		})
	}
}
