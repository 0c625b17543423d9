//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		MilvusAppSet,
		EmbeddingSet,
		RetrievalSet,
		GenerationSet,
		JobSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化任务执行器
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		MilvusAppSet,
		EmbeddingSet,
		RetrievalSet,
		GenerationSet,
		JobSet,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 初始化建表与索引构建所需依赖
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, func(), error) {
	wire.Build(
		PostgresSet,
		MilvusSet,
		ProvideEmbedder,
		IndexBuildSet,
		wire.Struct(new(Bootstrap), "*"),
	)
	return nil, nil, nil
}

// InitializeForge 初始化本地 CLI（SQLite 存档）
func InitializeForge(ctx context.Context, cfg *config.Config) (*Forge, func(), error) {
	wire.Build(
		ProvideSQLiteBundleRepository,
		MilvusAppSet,
		EmbeddingSet,
		RetrievalSet,
		GenerationSet,
		wire.Struct(new(Forge), "*"),
	)
	return nil, nil, nil
}
