package retrieval

import (
	"context"

	"github.com/cloudwego/eino/components/embedding"
)

// TileRecord 写入向量库的瓦片条目
type TileRecord struct {
	ID          string
	Description string
	Image       string
	X           int
	Y           int
	Vector      []float32
}

// TileMatch 检索命中，Score 为余弦相似度
type TileMatch struct {
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Description string  `json:"description"`
	Image       string  `json:"image,omitempty"`
	Score       float32 `json:"score"`
}

// VectorRepository 按类别管理向量集合（port），由 Milvus 实现
type VectorRepository interface {
	EnsureCollection(ctx context.Context, category Category, dim int) error
	DropCollection(ctx context.Context, category Category) error
	HasCollection(ctx context.Context, category Category) (bool, error)
	Load(ctx context.Context, category Category) error
	Insert(ctx context.Context, category Category, records []TileRecord) error
	Search(ctx context.Context, category Category, vector []float32, k int) ([]TileMatch, error)
	Count(ctx context.Context, category Category) (int64, error)
}

// Embedder 文本向量化（port），与 Eino embedding.Embedder 同签名
type Embedder interface {
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
