// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"roguelike-forge-api/internal/config"
)

const defaultTimeout = 60 * time.Second

// NewEinoEmbedder 创建基于 Eino 的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	ec := &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   model,
		Timeout: defaultTimeout,
	}
	// 仅 text-embedding-3 系列支持自定义维度
	if cfg.Dimension > 0 && model != "text-embedding-ada-002" {
		dim := cfg.Dimension
		ec.Dimensions = &dim
	}

	embedder, err := openai.NewEmbedder(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return embedder, nil
}
