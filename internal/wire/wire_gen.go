//go:build !wireinject
// +build !wireinject

// 注入器按 wire.go 中的声明手工维护，修改 provider 集合时同步更新

package wire

import (
	"context"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/infrastructure/llm"
	"roguelike-forge-api/internal/infrastructure/persistence/postgres"
	"roguelike-forge-api/internal/infrastructure/persistence/redis"
	"roguelike-forge-api/internal/interfaces/http/router"
)

// Injectors from wire.go:

// InitializeApp 初始化 API 网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	client, cleanup, err := ProvidePostgresClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	redisClient, cleanup2, err := ProvideRedisClient(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cache := redis.NewCache(redisClient)
	bundleRepository, cleanup3, err := ProvideBundleRepository(ctx, cfg, client, cache)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	milvusClient, cleanup4, err := ProvideMilvusClientOptional(ctx, cfg)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	healthHandler := ProvideHealthHandler(cfg, client, redisClient, milvusClient)
	einoFactory := llm.NewEinoFactory(cfg)
	vectorRepository := ProvideVectorRepository(milvusClient)
	embedder := ProvideEmbedderOptional(ctx, cfg)
	store := ProvideRetrievalStore(ctx, vectorRepository, embedder)
	generator := ProvideBundleGenerator(einoFactory, store, cfg)
	jobRepository := postgres.NewJobRepository(client)
	mapgenGenerator := ProvideMapGenerator(einoFactory, store, cfg)
	producer := ProvideMessagingProducer(redisClient, cfg)
	txManager := postgres.NewTxManager(client)
	service := ProvideJobService(jobRepository, bundleRepository, generator, mapgenGenerator, producer, txManager)
	bundleHandler := ProvideBundleHandler(generator, bundleRepository, service, cfg)
	mapHandler := ProvideMapHandler(mapgenGenerator, service, cfg)
	tilesetHandler := ProvideTilesetHandler(store)
	jobHandler := ProvideJobHandler(service)
	handlers := &router.Handlers{
		Health:  healthHandler,
		Bundle:  bundleHandler,
		Map:     mapHandler,
		Tileset: tilesetHandler,
		Job:     jobHandler,
	}
	rateLimiter := redis.NewRateLimiter(redisClient)
	routerRouter := router.New(cfg, handlers, rateLimiter)
	return routerRouter, func() {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}

// InitializeWorker 初始化任务执行器
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	redisClient, cleanup, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	client, cleanup2, err := ProvidePostgresClient(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	jobRepository := postgres.NewJobRepository(client)
	cache := redis.NewCache(redisClient)
	bundleRepository, cleanup3, err := ProvideBundleRepository(ctx, cfg, client, cache)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	einoFactory := llm.NewEinoFactory(cfg)
	milvusClient, cleanup4, err := ProvideMilvusClientOptional(ctx, cfg)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	vectorRepository := ProvideVectorRepository(milvusClient)
	embedder := ProvideEmbedderOptional(ctx, cfg)
	store := ProvideRetrievalStore(ctx, vectorRepository, embedder)
	generator := ProvideBundleGenerator(einoFactory, store, cfg)
	mapgenGenerator := ProvideMapGenerator(einoFactory, store, cfg)
	producer := ProvideMessagingProducer(redisClient, cfg)
	txManager := postgres.NewTxManager(client)
	service := ProvideJobService(jobRepository, bundleRepository, generator, mapgenGenerator, producer, txManager)
	worker := &Worker{
		RedisClient: redisClient,
		Jobs:        service,
	}
	return worker, func() {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}

// InitializeBootstrap 初始化建表与索引构建所需依赖
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, func(), error) {
	client, cleanup, err := ProvidePostgresClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	milvusClient, cleanup2, err := ProvideMilvusClient(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	vectorRepository := ProvideVectorRepository(milvusClient)
	embedder, err := ProvideEmbedder(ctx, cfg)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	store := ProvideIndexStore(vectorRepository, embedder)
	indexer := ProvideIndexer(vectorRepository, embedder, store)
	bootstrap := &Bootstrap{
		PgClient: client,
		Indexer:  indexer,
		Store:    store,
	}
	return bootstrap, func() {
		cleanup2()
		cleanup()
	}, nil
}

// InitializeForge 初始化本地 CLI（SQLite 存档）
func InitializeForge(ctx context.Context, cfg *config.Config) (*Forge, func(), error) {
	bundleRepository, cleanup, err := ProvideSQLiteBundleRepository(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	einoFactory := llm.NewEinoFactory(cfg)
	milvusClient, cleanup2, err := ProvideMilvusClientOptional(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	vectorRepository := ProvideVectorRepository(milvusClient)
	embedder := ProvideEmbedderOptional(ctx, cfg)
	store := ProvideRetrievalStore(ctx, vectorRepository, embedder)
	generator := ProvideBundleGenerator(einoFactory, store, cfg)
	mapgenGenerator := ProvideMapGenerator(einoFactory, store, cfg)
	forge := &Forge{
		Bundles:   bundleRepository,
		BundleGen: generator,
		MapGen:    mapgenGenerator,
	}
	return forge, func() {
		cleanup2()
		cleanup()
	}, nil
}
