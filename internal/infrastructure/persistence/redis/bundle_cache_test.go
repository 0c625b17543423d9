package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
)

// memoryCache 进程内缓存，按 redis 缓存的语义实现
type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) ReadThrough(_ context.Context, key string, _ time.Duration, loader func() (any, error)) ([]byte, error) {
	c.mu.Lock()
	if v, ok := c.data[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := loader()
	if errors.Is(err, ErrSkipCache) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.data[key] = b
	c.mu.Unlock()
	return b, nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *memoryCache) DeleteMatching(_ context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

// countingRepo 记录回源次数
type countingRepo struct {
	bundles map[string]*entity.AssetBundle
	gets    int
	lists   int
}

func (r *countingRepo) Create(_ context.Context, b *entity.AssetBundle) error {
	r.bundles[b.ID] = b
	return nil
}

func (r *countingRepo) List(_ context.Context, p repository.Pagination) (*repository.PagedResult[*entity.AssetBundleSummary], error) {
	r.lists++
	items := make([]*entity.AssetBundleSummary, 0, len(r.bundles))
	for _, b := range r.bundles {
		items = append(items, b.Summary())
	}
	return repository.NewPagedResult(items, int64(len(items)), p), nil
}

func (r *countingRepo) GetByID(_ context.Context, id string) (*entity.AssetBundle, error) {
	r.gets++
	return r.bundles[id], nil
}

func (r *countingRepo) Delete(_ context.Context, id string) (bool, error) {
	_, ok := r.bundles[id]
	delete(r.bundles, id)
	return ok, nil
}

func (r *countingRepo) Rename(_ context.Context, id, name string) (bool, error) {
	b, ok := r.bundles[id]
	if ok {
		b.Name = name
	}
	return ok, nil
}

func TestCachedBundleRepositoryReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{bundles: map[string]*entity.AssetBundle{}}
	cache := newMemoryCache()
	repo := newCachedBundleRepository(inner, cache, time.Minute)

	b := &entity.AssetBundle{ID: "b1", Name: "Souls of the Dead City"}
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := repo.GetByID(ctx, "b1")
		if err != nil || got == nil || got.Name != b.Name {
			t.Fatalf("get: %+v err=%v", got, err)
		}
	}
	if inner.gets != 1 {
		t.Fatalf("expected 1 backend read, got %d", inner.gets)
	}

	if _, err := repo.Rename(ctx, "b1", "Ashes of the Dead City"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := repo.GetByID(ctx, "b1")
	if got.Name != "Ashes of the Dead City" {
		t.Fatalf("expected rename to invalidate cache, got %q", got.Name)
	}
	if inner.gets != 2 {
		t.Fatalf("expected 2 backend reads, got %d", inner.gets)
	}
}

func TestCachedBundleRepositoryMissNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{bundles: map[string]*entity.AssetBundle{}}
	repo := newCachedBundleRepository(inner, newMemoryCache(), time.Minute)

	for i := 0; i < 2; i++ {
		got, err := repo.GetByID(ctx, "missing")
		if err != nil || got != nil {
			t.Fatalf("expected miss, got %+v err=%v", got, err)
		}
	}
	if inner.gets != 2 {
		t.Fatalf("expected misses to reach the backend, got %d", inner.gets)
	}
}

func TestCachedBundleRepositoryListInvalidation(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{bundles: map[string]*entity.AssetBundle{}}
	cache := newMemoryCache()
	repo := newCachedBundleRepository(inner, cache, time.Minute)
	page := repository.NewPagination(1, 20)

	if _, err := repo.List(ctx, page); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := repo.List(ctx, page); err != nil {
		t.Fatalf("list: %v", err)
	}
	if inner.lists != 1 {
		t.Fatalf("expected cached list, got %d backend lists", inner.lists)
	}

	_ = repo.Create(ctx, &entity.AssetBundle{ID: "b2", Name: "Echoes of the Sunken Crypt"})
	res, err := repo.List(ctx, page)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if inner.lists != 2 || res.Total != 1 {
		t.Fatalf("expected fresh list after create, lists=%d total=%d", inner.lists, res.Total)
	}

	if ok, _ := repo.Delete(ctx, "b2"); !ok {
		t.Fatal("expected delete hit")
	}
	if len(cache.deleted) != 1 || cache.deleted[0] != BundleKey("b2") {
		t.Fatalf("expected bundle key invalidated, got %v", cache.deleted)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"rate limit", RateLimitKey("generation", "10.0.0.1"), "forge:ratelimit:generation:10.0.0.1"},
		{"bundle", BundleKey("b1"), "forge:bundle:b1"},
		{"bundle list", BundleListKey(2, 20), "forge:bundles:list:2:20"},
		{"bundle list pattern", BundleListPattern, "forge:bundles:list:*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}
