package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"roguelike-forge-api/internal/infrastructure/tileset"
	"roguelike-forge-api/pkg/logger"
	"roguelike-forge-api/pkg/metrics"
)

const defaultEmbeddingBatch = 64

// BuildOptions 索引构建参数
type BuildOptions struct {
	// Rebuild 为 true 时删除已有集合后重建
	Rebuild   bool
	BatchSize int
}

// BuildReport 单个类别的构建结果
type BuildReport struct {
	Category     Category      `json:"category"`
	Rows         int           `json:"rows"`
	AlreadyBuilt bool          `json:"already_built"`
	Duration     time.Duration `json:"duration"`
}

// Indexer 显式构建类别向量集合
type Indexer struct {
	repo     VectorRepository
	embedder Embedder
	store    *Store

	locksMu sync.Mutex
	locks   map[Category]*sync.Mutex
}

// NewIndexer 创建索引构建器；store 非空时构建完成后标记就绪
func NewIndexer(repo VectorRepository, embedder Embedder, store *Store) *Indexer {
	return &Indexer{
		repo:     repo,
		embedder: embedder,
		store:    store,
		locks:    make(map[Category]*sync.Mutex),
	}
}

func (i *Indexer) lock(c Category) *sync.Mutex {
	i.locksMu.Lock()
	defer i.locksMu.Unlock()
	m, ok := i.locks[c]
	if !ok {
		m = &sync.Mutex{}
		i.locks[c] = m
	}
	return m
}

// Build 向量化并写入一个类别；同类别并发构建串行执行
func (i *Indexer) Build(ctx context.Context, category Category, rows []tileset.Row, opts BuildOptions) (*BuildReport, error) {
	if i == nil || i.repo == nil || i.embedder == nil {
		return nil, ErrVectorDisabled
	}

	m := i.lock(category)
	m.Lock()
	defer m.Unlock()

	start := time.Now()
	report := &BuildReport{Category: category}

	has, err := i.repo.HasCollection(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", category, err)
	}
	if has && !opts.Rebuild {
		if err := i.repo.Load(ctx, category); err != nil {
			return nil, fmt.Errorf("load collection %s: %w", category, err)
		}
		i.markReady(category)
		report.AlreadyBuilt = true
		report.Duration = time.Since(start)
		logger.Info(ctx, "tileset collection already built", "category", string(category))
		return report, nil
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCategory, category)
	}
	if has {
		if err := i.repo.DropCollection(ctx, category); err != nil {
			return nil, fmt.Errorf("drop collection %s: %w", category, err)
		}
	}

	records, err := i.embedRows(ctx, rows, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if err := i.repo.EnsureCollection(ctx, category, len(records[0].Vector)); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", category, err)
	}
	if err := i.repo.Insert(ctx, category, records); err != nil {
		return nil, fmt.Errorf("insert %s: %w", category, err)
	}
	if err := i.repo.Load(ctx, category); err != nil {
		return nil, fmt.Errorf("load collection %s: %w", category, err)
	}
	i.markReady(category)
	metrics.TilesetRowsIndexed.WithLabelValues(string(category)).Add(float64(len(records)))

	report.Rows = len(records)
	report.Duration = time.Since(start)
	logger.Info(ctx, "tileset collection built",
		"category", string(category),
		"rows", report.Rows,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// BuildAll 按固定顺序构建全部类别
func (i *Indexer) BuildAll(ctx context.Context, source tileset.Source, opts BuildOptions) ([]*BuildReport, error) {
	reports := make([]*BuildReport, 0, len(Categories()))
	for _, c := range Categories() {
		path, ok := source[string(c)]
		if !ok || path == "" {
			return reports, fmt.Errorf("no tileset source configured for category %s", c)
		}
		rows, err := tileset.LoadCSV(path)
		if err != nil {
			return reports, err
		}
		report, err := i.Build(ctx, c, rows, opts)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (i *Indexer) markReady(c Category) {
	if i.store != nil {
		i.store.markReady(c)
	}
}

func (i *Indexer) embedRows(ctx context.Context, rows []tileset.Row, batchSize int) ([]TileRecord, error) {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatch
	}

	records := make([]TileRecord, 0, len(rows))
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		texts := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			texts = append(texts, row.Description)
		}

		vecs, err := i.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed rows %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed rows %d-%d: expected %d vectors, got %d", start, end, len(texts), len(vecs))
		}
		for j, row := range rows[start:end] {
			records = append(records, TileRecord{
				ID:          uuid.NewString(),
				Description: row.Description,
				Image:       row.Image,
				X:           row.X,
				Y:           row.Y,
				Vector:      toFloat32(vecs[j]),
			})
		}
	}
	return records, nil
}
