// Package redis 为资产包读缓存、接口限流与任务队列提供共享连接
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"roguelike-forge-api/internal/config"
)

var tracer = otel.Tracer("redis")

const (
	keyNamespace = "forge"
	pingTimeout  = 5 * time.Second
)

// Client 共享的 go-redis 连接池
type Client struct {
	rdb  *redis.Client
	addr string
}

// NewClient 按配置建立连接池，启动时 ping 一次确认可达
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	addr := cfg.Addr()
	opts := &redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", addr, err)
	}
	return &Client{rdb: rdb, addr: addr}, nil
}

// Redis 底层连接，Stream 生产者与消费者直接使用
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis %s unreachable: %w", c.addr, err)
	}
	return nil
}

// Key 拼接带命名空间的键，例如 forge:bundles:<id>
func Key(parts ...string) string {
	return keyNamespace + ":" + strings.Join(parts, ":")
}

// IsNil 键不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
