package bundle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"roguelike-forge-api/internal/application/retrieval"
	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/pkg/metrics"
)

const (
	StrategyNearest = "nearest"
	StrategyRerank  = "rerank"

	defaultCandidates = 6
)

// TextureSearcher 瓦片集相似度检索
type TextureSearcher interface {
	Search(ctx context.Context, query string, category retrieval.Category, k int) ([]retrieval.TileMatch, error)
}

// pickFunc 从候选中选出一个纹理
type pickFunc func(ctx context.Context, tile entity.Tile, candidates []retrieval.TileMatch) (retrieval.TileMatch, error)

// textureResolver 单次生成内的纹理解析；memo 打开时相同 (类别, 描述) 只检索一次
type textureResolver struct {
	store      TextureSearcher
	candidates int
	pick       pickFunc
	memo       bool

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]entity.Texture
}

func newTextureResolver(store TextureSearcher, memo bool, candidates int, pick pickFunc) *textureResolver {
	if pick != nil && candidates <= 0 {
		candidates = defaultCandidates
	}
	return &textureResolver{
		store:      store,
		candidates: candidates,
		pick:       pick,
		memo:       memo,
		cache:      make(map[string]entity.Texture),
	}
}

// memoKey 按原文区分描述；大小写或空白不同的描述各自检索
func memoKey(category retrieval.Category, description string) string {
	return string(category) + "\x00" + description
}

// Resolve 为可视元素绑定纹理
func (r *textureResolver) Resolve(ctx context.Context, category retrieval.Category, tile entity.Tile) (entity.Texture, error) {
	if !r.memo {
		metrics.TextureLookups.WithLabelValues(string(category), "off").Inc()
		return r.lookup(ctx, category, tile)
	}

	key := memoKey(category, tile.Description)
	r.mu.Lock()
	tex, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		metrics.TextureLookups.WithLabelValues(string(category), "hit").Inc()
		return tex, nil
	}

	v, err, shared := r.group.Do(key, func() (any, error) {
		tex, err := r.lookup(ctx, category, tile)
		if err != nil {
			return entity.Texture{}, err
		}
		r.mu.Lock()
		r.cache[key] = tex
		r.mu.Unlock()
		return tex, nil
	})
	if err != nil {
		return entity.Texture{}, err
	}
	label := "miss"
	if shared {
		label = "hit"
	}
	metrics.TextureLookups.WithLabelValues(string(category), label).Inc()
	return v.(entity.Texture), nil
}

func (r *textureResolver) lookup(ctx context.Context, category retrieval.Category, tile entity.Tile) (entity.Texture, error) {
	if r.pick == nil {
		matches, err := r.store.Search(ctx, tile.Description, category, 1)
		if err != nil {
			return entity.Texture{}, err
		}
		return textureFromMatch(category, matches[0]), nil
	}

	matches, err := r.store.Search(ctx, tile.Description, category, r.candidates)
	if err != nil {
		return entity.Texture{}, err
	}
	picked, err := r.pick(ctx, tile, matches)
	if err != nil {
		return entity.Texture{}, err
	}
	return textureFromMatch(category, picked), nil
}

func textureFromMatch(category retrieval.Category, m retrieval.TileMatch) entity.Texture {
	return entity.Texture{
		Position:    entity.TexturePosition{X: m.X, Y: m.Y},
		Description: m.Description,
		Category:    string(category),
		Score:       m.Score,
	}
}

// formatCandidates 候选列表的提示词文本
func formatCandidates(matches []retrieval.TileMatch) string {
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "- (%d, %d) %s\n", m.X, m.Y, strings.TrimSpace(m.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

// candidateAt 按坐标查找候选
func candidateAt(matches []retrieval.TileMatch, x, y int) (retrieval.TileMatch, bool) {
	for _, m := range matches {
		if m.X == x && m.Y == y {
			return m, true
		}
	}
	return retrieval.TileMatch{}, false
}
