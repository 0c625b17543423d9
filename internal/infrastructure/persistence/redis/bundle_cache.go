package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
	"roguelike-forge-api/pkg/logger"
)

// bundleCache CachedBundleRepository 依赖的缓存能力
type bundleCache interface {
	ReadThrough(ctx context.Context, key string, ttl time.Duration, load func() (any, error)) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteMatching(ctx context.Context, pattern string) (int, error)
}

var _ repository.BundleRepository = (*CachedBundleRepository)(nil)

// CachedBundleRepository 为资产包仓储加一层读缓存
//
// 写操作先落库再失效缓存；失效失败只记日志。
type CachedBundleRepository struct {
	next  repository.BundleRepository
	cache bundleCache
	ttl   time.Duration
}

// NewCachedBundleRepository 创建带缓存的资产包仓储
func NewCachedBundleRepository(next repository.BundleRepository, cache *Cache, ttl time.Duration) *CachedBundleRepository {
	return newCachedBundleRepository(next, cache, ttl)
}

func newCachedBundleRepository(next repository.BundleRepository, cache bundleCache, ttl time.Duration) *CachedBundleRepository {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedBundleRepository{next: next, cache: cache, ttl: ttl}
}

// Create 写入后使列表缓存失效
func (r *CachedBundleRepository) Create(ctx context.Context, bundle *entity.AssetBundle) error {
	if err := r.next.Create(ctx, bundle); err != nil {
		return err
	}
	r.invalidate(ctx, "")
	return nil
}

// List 分页结果缓存
func (r *CachedBundleRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.AssetBundleSummary], error) {
	raw, err := r.cache.ReadThrough(ctx, BundleListKey(pagination.Page, pagination.PageSize), r.ttl, func() (any, error) {
		return r.next.List(ctx, pagination)
	})
	if err != nil {
		return nil, err
	}
	var out repository.PagedResult[*entity.AssetBundleSummary]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode cached bundle list: %w", err)
	}
	return &out, nil
}

// GetByID 不缓存未命中
func (r *CachedBundleRepository) GetByID(ctx context.Context, id string) (*entity.AssetBundle, error) {
	raw, err := r.cache.ReadThrough(ctx, BundleKey(id), r.ttl, func() (any, error) {
		b, err := r.next.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, ErrSkipCache
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var b entity.AssetBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to decode cached bundle %s: %w", id, err)
	}
	return &b, nil
}

// Delete 删除并失效
func (r *CachedBundleRepository) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := r.next.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		r.invalidate(ctx, id)
	}
	return ok, nil
}

// Rename 改名并失效
func (r *CachedBundleRepository) Rename(ctx context.Context, id, name string) (bool, error) {
	ok, err := r.next.Rename(ctx, id, name)
	if err != nil {
		return false, err
	}
	if ok {
		r.invalidate(ctx, id)
	}
	return ok, nil
}

func (r *CachedBundleRepository) invalidate(ctx context.Context, id string) {
	if id != "" {
		if err := r.cache.Delete(ctx, BundleKey(id)); err != nil {
			logger.Warn(ctx, "failed to invalidate bundle cache", "bundle_id", id, "error", err.Error())
		}
	}
	if _, err := r.cache.DeleteMatching(ctx, BundleListPattern); err != nil {
		logger.Warn(ctx, "failed to invalidate bundle list cache", "error", err.Error())
	}
}
