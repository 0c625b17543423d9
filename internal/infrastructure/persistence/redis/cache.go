package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"roguelike-forge-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

// ErrSkipCache loader 返回它表示结果不可缓存，ReadThrough 返回 (nil, nil)
var ErrSkipCache = errors.New("skip cache")

const scanBatch = 200

// Cache JSON 读缓存；同一键的并发回源只执行一次
type Cache struct {
	client *Client
	loads  singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// ReadThrough 命中直接返回；未命中或读缓存失败时调用 load 并把 JSON 结果写回。
// 写回失败不影响本次结果。
func (c *Cache) ReadThrough(ctx context.Context, key string, ttl time.Duration, load func() (any, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.ReadThrough", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	cached, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	case !IsNil(err):
		// 缓存不可用时直接回源
		span.RecordError(err)
		logger.Warn(ctx, "cache get failed, loading from source", "key", key, "error", err.Error())
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, shared := c.loads.Do(key, func() (any, error) {
		value, err := load()
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cache encode %s: %w", key, err)
		}
		if err := c.client.rdb.Set(ctx, key, encoded, ttl).Err(); err != nil {
			span.RecordError(err)
		}
		return encoded, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if errors.Is(err, ErrSkipCache) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.rdb.Del(ctx, keys...).Err()
}

// DeleteMatching 扫描并删除匹配 pattern 的键，返回删除数量
func (c *Cache) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.DeleteMatching", trace.WithAttributes(attribute.String("cache.pattern", pattern)))
	defer span.End()

	removed := 0
	iter := c.client.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := c.client.rdb.Unlink(ctx, batch...).Err(); err != nil {
				return removed, err
			}
			removed += len(batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return removed, err
	}
	if len(batch) > 0 {
		if err := c.client.rdb.Unlink(ctx, batch...).Err(); err != nil {
			return removed, err
		}
		removed += len(batch)
	}
	span.SetAttributes(attribute.Int("cache.removed", removed))
	return removed, nil
}

// BundleKey 单个资产包
func BundleKey(id string) string {
	return Key("bundle", id)
}

// BundleListPattern 所有分页列表缓存
var BundleListPattern = Key("bundles", "list", "*")

func BundleListKey(page, pageSize int) string {
	return Key("bundles", "list", strconv.Itoa(page), strconv.Itoa(pageSize))
}
