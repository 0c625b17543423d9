package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"roguelike-forge-api/pkg/logger"
)

// Store 瓦片集相似度检索
//
// 检索前必须 EnsureReady 或由 Indexer 构建；未就绪的类别返回 ErrIndexNotBuilt，不会隐式构建。
type Store struct {
	repo     VectorRepository
	embedder Embedder

	mu    sync.RWMutex
	ready map[Category]bool
}

// NewStore 创建检索存储
func NewStore(repo VectorRepository, embedder Embedder) *Store {
	return &Store{
		repo:     repo,
		embedder: embedder,
		ready:    make(map[Category]bool),
	}
}

// Enabled 是否配置了向量库与 Embedder
func (s *Store) Enabled() bool {
	return s != nil && s.repo != nil && s.embedder != nil
}

// EnsureReady 检查并加载全部类别集合
func (s *Store) EnsureReady(ctx context.Context) error {
	if !s.Enabled() {
		return ErrVectorDisabled
	}

	var missing []string
	for _, c := range Categories() {
		has, err := s.repo.HasCollection(ctx, c)
		if err != nil {
			return fmt.Errorf("check collection %s: %w", c, err)
		}
		if !has {
			missing = append(missing, string(c))
			continue
		}
		if err := s.repo.Load(ctx, c); err != nil {
			return fmt.Errorf("load collection %s: %w", c, err)
		}
		s.markReady(c)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIndexNotBuilt, strings.Join(missing, ", "))
	}

	logger.Info(ctx, "tileset index ready", "categories", len(Categories()))
	return nil
}

// Ready 类别是否已就绪
func (s *Store) Ready(c Category) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready[c]
}

func (s *Store) markReady(c Category) {
	s.mu.Lock()
	s.ready[c] = true
	s.mu.Unlock()
}

// Search 返回至多 k 个按相似度降序排列的命中
func (s *Store) Search(ctx context.Context, query string, category Category, k int) ([]TileMatch, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, ErrInvalidTopK
	}
	if !s.Enabled() {
		return nil, ErrVectorDisabled
	}
	if !s.Ready(category) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotBuilt, category)
	}

	vecs, err := s.embedder.EmbedStrings(ctx, []string{q})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("embed query: empty embedding result")
	}

	matches, err := s.repo.Search(ctx, category, toFloat32(vecs[0]), k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", category, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCategory, category)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Nearest 返回 top-1 命中
func (s *Store) Nearest(ctx context.Context, query string, category Category) (TileMatch, error) {
	matches, err := s.Search(ctx, query, category, 1)
	if err != nil {
		return TileMatch{}, err
	}
	return matches[0], nil
}
