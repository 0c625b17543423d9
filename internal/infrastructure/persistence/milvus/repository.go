package milvus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roguelike-forge-api/internal/application/retrieval"
	"roguelike-forge-api/pkg/metrics"
)

const defaultSearchEf = 128

// TileRepository 每个类别一个集合的瓦片向量仓储
type TileRepository struct {
	client *Client
}

// NewTileRepository 创建瓦片向量仓储
func NewTileRepository(client *Client) *TileRepository {
	return &TileRepository{client: client}
}

var _ retrieval.VectorRepository = (*TileRepository)(nil)

func (r *TileRepository) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return retrieval.ErrVectorDisabled
	}
	return nil
}

// EnsureCollection 不存在则创建集合与 HNSW/COSINE 索引
func (r *TileRepository) EnsureCollection(ctx context.Context, category retrieval.Category, dim int) error {
	if err := r.ready(); err != nil {
		return err
	}
	name := TilesCollection(string(category))
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", name), attribute.Int("dim", dim)))
	defer span.End()

	exists, err := r.client.HasCollection(ctx, name)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if exists {
		return nil
	}

	collName := r.client.CollectionName(name)
	if err := r.client.milvus.CreateCollection(ctx, TilesSchema(collName, dim), entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, r.client.config.HNSWM, r.client.config.HNSWEfConstruction)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := r.client.milvus.CreateIndex(ctx, collName, fieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// DropCollection 删除类别集合
func (r *TileRepository) DropCollection(ctx context.Context, category retrieval.Category) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.client.DropCollection(ctx, TilesCollection(string(category)))
}

// HasCollection 类别集合是否存在
func (r *TileRepository) HasCollection(ctx context.Context, category retrieval.Category) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	return r.client.HasCollection(ctx, TilesCollection(string(category)))
}

// Load 加载类别集合
func (r *TileRepository) Load(ctx context.Context, category retrieval.Category) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.client.LoadCollection(ctx, TilesCollection(string(category)))
}

// Insert 写入瓦片条目并 Flush
func (r *TileRepository) Insert(ctx context.Context, category retrieval.Category, records []retrieval.TileRecord) error {
	if err := r.ready(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	name := TilesCollection(string(category))
	ctx, span := tracer.Start(ctx, "milvus.Insert",
		trace.WithAttributes(attribute.String("collection", name), attribute.Int("count", len(records))))
	defer span.End()

	dim := len(records[0].Vector)
	ids := make([]string, len(records))
	descs := make([]string, len(records))
	images := make([]string, len(records))
	xs := make([]int64, len(records))
	ys := make([]int64, len(records))
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		if len(rec.Vector) != dim {
			return fmt.Errorf("record %d: vector dim %d, expected %d", i, len(rec.Vector), dim)
		}
		ids[i] = rec.ID
		descs[i] = rec.Description
		images[i] = rec.Image
		xs[i] = int64(rec.X)
		ys[i] = int64(rec.Y)
		vectors[i] = rec.Vector
	}

	collName := r.client.CollectionName(name)
	_, err := r.client.milvus.Insert(ctx, collName, "",
		entity.NewColumnVarChar(fieldTileID, ids),
		entity.NewColumnVarChar(fieldDescription, descs),
		entity.NewColumnVarChar(fieldImage, images),
		entity.NewColumnInt64(fieldX, xs),
		entity.NewColumnInt64(fieldY, ys),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert tiles: %w", err)
	}
	if err := r.client.milvus.Flush(ctx, collName, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to flush tiles: %w", err)
	}
	return nil
}

// Search 余弦相似度检索，分数越大越相似
func (r *TileRepository) Search(ctx context.Context, category retrieval.Category, vector []float32, k int) ([]retrieval.TileMatch, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	name := TilesCollection(string(category))
	collName := r.client.CollectionName(name)
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(attribute.String("collection", name), attribute.Int("top_k", k)))
	defer span.End()

	ef := r.client.config.SearchEf
	if ef <= 0 {
		ef = defaultSearchEf
	}
	if ef < k {
		ef = k
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	start := time.Now()
	results, err := r.client.milvus.Search(ctx,
		collName,
		nil,
		"",
		[]string{fieldDescription, fieldImage, fieldX, fieldY},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		entity.COSINE,
		k,
		sp,
	)
	metrics.MilvusSearchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(name, "success").Inc()

	var matches []retrieval.TileMatch
	for _, result := range results {
		descCol, _ := result.Fields.GetColumn(fieldDescription).(*entity.ColumnVarChar)
		imageCol, _ := result.Fields.GetColumn(fieldImage).(*entity.ColumnVarChar)
		xCol, _ := result.Fields.GetColumn(fieldX).(*entity.ColumnInt64)
		yCol, _ := result.Fields.GetColumn(fieldY).(*entity.ColumnInt64)

		for i := 0; i < result.ResultCount; i++ {
			m := retrieval.TileMatch{Score: result.Scores[i]}
			if descCol != nil {
				m.Description = descCol.Data()[i]
			}
			if imageCol != nil {
				m.Image = imageCol.Data()[i]
			}
			if xCol != nil {
				m.X = int(xCol.Data()[i])
			}
			if yCol != nil {
				m.Y = int(yCol.Data()[i])
			}
			matches = append(matches, m)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(matches)))
	return matches, nil
}

// Count 类别集合行数
func (r *TileRepository) Count(ctx context.Context, category retrieval.Category) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	stats, err := r.client.milvus.GetCollectionStatistics(ctx, r.client.CollectionName(TilesCollection(string(category))))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}
