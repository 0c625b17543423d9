package retrieval

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/embedding"

	"roguelike-forge-api/internal/infrastructure/tileset"
)

const testDim = 256

// wordEmbedder 以词哈希计数作为向量，共享词越多越相似
type wordEmbedder struct {
	calls int
}

func (e *wordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.calls++
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, testDim)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%testDim]++
		}
		out[i] = vec
	}
	return out, nil
}

type memoryRepo struct {
	mu          sync.Mutex
	collections map[Category][]TileRecord
	loaded      map[Category]bool
	drops       int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{collections: map[Category][]TileRecord{}, loaded: map[Category]bool{}}
}

func (r *memoryRepo) EnsureCollection(_ context.Context, c Category, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[c]; !ok {
		r.collections[c] = []TileRecord{}
	}
	return nil
}

func (r *memoryRepo) DropCollection(_ context.Context, c Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.collections, c)
	delete(r.loaded, c)
	r.drops++
	return nil
}

func (r *memoryRepo) HasCollection(_ context.Context, c Category) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.collections[c]
	return ok, nil
}

func (r *memoryRepo) Load(_ context.Context, c Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[c] = true
	return nil
}

func (r *memoryRepo) Insert(_ context.Context, c Category, records []TileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[c] = append(r.collections[c], records...)
	return nil
}

func (r *memoryRepo) Search(_ context.Context, c Category, vector []float32, k int) ([]TileMatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TileMatch
	for _, rec := range r.collections[c] {
		out = append(out, TileMatch{X: rec.X, Y: rec.Y, Description: rec.Description, Image: rec.Image, Score: cosine(vector, rec.Vector)})
	}
	// 故意升序返回，验证 Store 自行排序
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if len(out) > k {
		out = out[len(out)-k:]
	}
	return out, nil
}

func (r *memoryRepo) Count(_ context.Context, c Category) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.collections[c])), nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var itemRows = []tileset.Row{
	{Description: "red healing potion in a glass flask", X: 1, Y: 0},
	{Description: "rusty iron sword with leather grip", X: 2, Y: 0},
	{Description: "golden crown with rubies", X: 3, Y: 0},
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{in: "items", want: CategoryItems},
		{in: " Environments ", want: CategoryEnvironments},
		{in: "entities", want: CategoryEntities},
		{in: "monsters", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownCategory) {
				t.Fatalf("%q: expected ErrUnknownCategory, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: expected %s, got %s (%v)", tt.in, tt.want, got, err)
		}
	}
	if len(Categories()) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(Categories()))
	}
}

func TestSearchRequiresBuiltIndex(t *testing.T) {
	store := NewStore(newMemoryRepo(), &wordEmbedder{})

	_, err := store.Search(context.Background(), "sword", CategoryItems, 1)
	if !errors.Is(err, ErrIndexNotBuilt) {
		t.Fatalf("expected ErrIndexNotBuilt, got %v", err)
	}
	if err := store.EnsureReady(context.Background()); !errors.Is(err, ErrIndexNotBuilt) {
		t.Fatalf("expected EnsureReady to report missing collections, got %v", err)
	}
}

func TestSearchArgumentErrors(t *testing.T) {
	store := NewStore(newMemoryRepo(), &wordEmbedder{})
	if _, err := store.Search(context.Background(), "   ", CategoryItems, 1); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := store.Search(context.Background(), "sword", CategoryItems, 0); !errors.Is(err, ErrInvalidTopK) {
		t.Fatalf("expected ErrInvalidTopK, got %v", err)
	}
}

func TestBuildAndSearchOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	embedder := &wordEmbedder{}
	store := NewStore(repo, embedder)
	indexer := NewIndexer(repo, embedder, store)

	report, err := indexer.Build(ctx, CategoryItems, itemRows, BuildOptions{BatchSize: 2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Rows != 3 || report.AlreadyBuilt {
		t.Fatalf("unexpected report %+v", report)
	}
	if embedder.calls != 2 {
		t.Fatalf("expected 2 embedding batches, got %d", embedder.calls)
	}

	matches, err := store.Search(ctx, "iron sword", CategoryItems, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i-1].Score < matches[i].Score {
			t.Fatalf("expected descending scores, got %+v", matches)
		}
	}

	nearest, err := store.Nearest(ctx, "iron sword", CategoryItems)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if nearest.X != 2 || nearest.Y != 0 {
		t.Fatalf("expected sword at (2,0), got %+v", nearest)
	}

	// 其它类别仍未构建
	if _, err := store.Nearest(ctx, "stone wall", CategoryEnvironments); !errors.Is(err, ErrIndexNotBuilt) {
		t.Fatalf("expected ErrIndexNotBuilt for environments, got %v", err)
	}
}

func TestBuildIsIdempotentUnlessRebuild(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	indexer := NewIndexer(repo, &wordEmbedder{}, nil)

	if _, err := indexer.Build(ctx, CategoryItems, itemRows, BuildOptions{}); err != nil {
		t.Fatalf("first build: %v", err)
	}
	report, err := indexer.Build(ctx, CategoryItems, itemRows, BuildOptions{})
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !report.AlreadyBuilt {
		t.Fatal("expected second build to be a no-op")
	}
	if n, _ := repo.Count(ctx, CategoryItems); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}

	if _, err := indexer.Build(ctx, CategoryItems, itemRows[:1], BuildOptions{Rebuild: true}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n, _ := repo.Count(ctx, CategoryItems); n != 1 || repo.drops != 1 {
		t.Fatalf("expected rebuilt collection with 1 row, got %d rows after %d drops", n, repo.drops)
	}
}

func TestBuildConcurrentSameCategory(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	indexer := NewIndexer(repo, &wordEmbedder{}, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	builtCount := 0
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := indexer.Build(ctx, CategoryEntities, itemRows, BuildOptions{})
			if err != nil {
				t.Errorf("build: %v", err)
				return
			}
			if !report.AlreadyBuilt {
				mu.Lock()
				builtCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if builtCount != 1 {
		t.Fatalf("expected exactly one real build, got %d", builtCount)
	}
	if n, _ := repo.Count(ctx, CategoryEntities); n != int64(len(itemRows)) {
		t.Fatalf("expected %d rows, got %d", len(itemRows), n)
	}
}

func TestBuildRejectsEmptyRows(t *testing.T) {
	indexer := NewIndexer(newMemoryRepo(), &wordEmbedder{}, nil)
	if _, err := indexer.Build(context.Background(), CategoryItems, nil, BuildOptions{}); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	_ = repo.EnsureCollection(ctx, CategoryItems, testDim)
	_ = repo.EnsureCollection(ctx, CategoryEnvironments, testDim)
	_ = repo.EnsureCollection(ctx, CategoryEntities, testDim)

	store := NewStore(repo, &wordEmbedder{})
	if err := store.EnsureReady(ctx); err != nil {
		t.Fatalf("ensure ready: %v", err)
	}
	if _, err := store.Nearest(ctx, "anything", CategoryItems); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}
}
