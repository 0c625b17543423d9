package wire

import (
	"context"
	"fmt"
	"strings"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/wire"

	"roguelike-forge-api/internal/application/bundle"
	"roguelike-forge-api/internal/application/job"
	"roguelike-forge-api/internal/application/mapgen"
	"roguelike-forge-api/internal/application/retrieval"
	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/domain/repository"
	infraembedding "roguelike-forge-api/internal/infrastructure/embedding"
	"roguelike-forge-api/internal/infrastructure/llm"
	"roguelike-forge-api/internal/infrastructure/messaging"
	"roguelike-forge-api/internal/infrastructure/persistence/milvus"
	"roguelike-forge-api/internal/infrastructure/persistence/postgres"
	"roguelike-forge-api/internal/infrastructure/persistence/redis"
	"roguelike-forge-api/internal/infrastructure/persistence/sqlite"
	"roguelike-forge-api/internal/interfaces/http/handler"
	"roguelike-forge-api/internal/interfaces/http/middleware"
	"roguelike-forge-api/internal/interfaces/http/router"
	"roguelike-forge-api/internal/workflow/port"
	"roguelike-forge-api/pkg/logger"
)

// Worker 任务执行器依赖容器
type Worker struct {
	RedisClient *redis.Client
	Jobs        *job.Service
}

// Bootstrap 建表与索引构建依赖容器
type Bootstrap struct {
	PgClient *postgres.Client
	Indexer  *retrieval.Indexer
	Store    *retrieval.Store
}

// Forge 本地 CLI 依赖容器
type Forge struct {
	Bundles   repository.BundleRepository
	BundleGen *bundle.Generator
	MapGen    *mapgen.Generator
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewJobRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	ProvideBundleRepository,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.JobRepository), new(*postgres.JobRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(job.Publisher), new(*messaging.Producer)),
)

// MilvusSet 必需的 Milvus（bootstrap 用）
var MilvusSet = wire.NewSet(
	ProvideMilvusClient,
	ProvideVectorRepository,
)

// MilvusAppSet 可选 Milvus（不可达时不阻塞启动）
var MilvusAppSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideVectorRepository,
)

// EmbeddingSet 可选 Embedder（不可用时禁用纹理检索）
var EmbeddingSet = wire.NewSet(
	ProvideEmbedderOptional,
)

// RetrievalSet 服务侧检索存储，启动时检查索引
var RetrievalSet = wire.NewSet(
	ProvideRetrievalStore,
)

// IndexBuildSet 索引构建
var IndexBuildSet = wire.NewSet(
	ProvideIndexStore,
	ProvideIndexer,
)

// GenerationSet LLM 与生成器
var GenerationSet = wire.NewSet(
	llm.NewEinoFactory,
	wire.Bind(new(port.ChatModelFactory), new(*llm.EinoFactory)),
	ProvideBundleGenerator,
	ProvideMapGenerator,
)

// JobSet 异步任务
var JobSet = wire.NewSet(
	ProvideJobService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideBundleHandler,
	ProvideMapHandler,
	ProvideTilesetHandler,
	ProvideJobHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideBundleRepository 按 storage.driver 选择资产包存储，外层加 Redis 读缓存
func ProvideBundleRepository(ctx context.Context, cfg *config.Config, pg *postgres.Client, cache *redis.Cache) (repository.BundleRepository, func(), error) {
	var (
		base    repository.BundleRepository
		cleanup = func() {}
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); driver {
	case "", config.StorageDriverPostgres:
		base = postgres.NewBundleRepository(pg)
	case config.StorageDriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		base = sqlite.NewBundleRepository(store)
		cleanup = func() {
			_ = store.Close()
		}
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
	return redis.NewCachedBundleRepository(base, cache, cfg.Cache.BundleTTL), cleanup, nil
}

const defaultSQLitePath = "data/forge.db"

// ProvideSQLiteBundleRepository CLI 始终使用本地 SQLite 存档
func ProvideSQLiteBundleRepository(ctx context.Context, cfg *config.Config) (repository.BundleRepository, func(), error) {
	path := cfg.Storage.SQLitePath
	if strings.TrimSpace(path) == "" {
		path = defaultSQLitePath
	}
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = store.Close()
	}
	return sqlite.NewBundleRepository(store), cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideMilvusClient 提供 Milvus 客户端
func ProvideMilvusClient(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, texture retrieval disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideVectorRepository 客户端为空时返回 nil 接口
func ProvideVectorRepository(client *milvus.Client) retrieval.VectorRepository {
	if client == nil {
		return nil
	}
	return milvus.NewTileRepository(client)
}

func ProvideEmbedder(ctx context.Context, cfg *config.Config) (einoembedding.Embedder, error) {
	return infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
}

func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) einoembedding.Embedder {
	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, texture retrieval disabled", "error", err.Error())
		return nil
	}
	return embedder
}

// ProvideRetrievalStore 创建检索存储并加载已构建的索引，未构建只告警
func ProvideRetrievalStore(ctx context.Context, repo retrieval.VectorRepository, embedder einoembedding.Embedder) *retrieval.Store {
	store := newStore(repo, embedder)
	if err := store.EnsureReady(ctx); err != nil {
		logger.Warn(ctx, "tileset index not ready, run bootstrap to build it", "error", err.Error())
	}
	return store
}

func ProvideIndexStore(repo retrieval.VectorRepository, embedder einoembedding.Embedder) *retrieval.Store {
	return newStore(repo, embedder)
}

func ProvideIndexer(repo retrieval.VectorRepository, embedder einoembedding.Embedder, store *retrieval.Store) *retrieval.Indexer {
	return retrieval.NewIndexer(repo, embedder, store)
}

// newStore 避免把 nil 的 Eino Embedder 包装成非 nil 接口
func newStore(repo retrieval.VectorRepository, embedder einoembedding.Embedder) *retrieval.Store {
	if embedder == nil {
		return retrieval.NewStore(repo, nil)
	}
	return retrieval.NewStore(repo, embedder)
}

// ProvideBundleGenerator 提供资产包生成器
func ProvideBundleGenerator(factory port.ChatModelFactory, store *retrieval.Store, cfg *config.Config) *bundle.Generator {
	return bundle.NewGenerator(factory, store, cfg.Generation)
}

// ProvideMapGenerator 提供地图生成器
func ProvideMapGenerator(factory port.ChatModelFactory, store *retrieval.Store, cfg *config.Config) *mapgen.Generator {
	return mapgen.NewGenerator(factory, store, cfg.MapGen)
}

// ProvideJobService 提供任务服务
func ProvideJobService(
	jobs repository.JobRepository,
	bundles repository.BundleRepository,
	bundleGen *bundle.Generator,
	mapGen *mapgen.Generator,
	publisher job.Publisher,
	tx repository.Transactor,
) *job.Service {
	return job.NewService(jobs, bundles, bundleGen, mapGen, publisher, job.WithTransactor(tx))
}

// ProvideHealthHandler Milvus 为可选依赖，缺失时不参与探活
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rdb *redis.Client, mc *milvus.Client) *handler.HealthHandler {
	required := map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    rdb,
	}
	optional := map[string]handler.HealthChecker{}
	if mc != nil {
		optional["milvus"] = mc
	}
	return handler.NewHealthHandler(cfg.App.Version, required, optional)
}

func ProvideBundleHandler(generator *bundle.Generator, bundles repository.BundleRepository, jobs *job.Service, cfg *config.Config) *handler.BundleHandler {
	return handler.NewBundleHandler(generator, bundles, jobs, cfg.Server.HTTP.SyncGenerationTimeout)
}

func ProvideMapHandler(generator *mapgen.Generator, jobs *job.Service, cfg *config.Config) *handler.MapHandler {
	return handler.NewMapHandler(generator, jobs, cfg.Server.HTTP.SyncGenerationTimeout)
}

func ProvideTilesetHandler(store *retrieval.Store) *handler.TilesetHandler {
	return handler.NewTilesetHandler(store)
}

func ProvideJobHandler(jobs *job.Service) *handler.JobHandler {
	return handler.NewJobHandler(jobs)
}
