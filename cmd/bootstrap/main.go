package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"roguelike-forge-api/internal/application/retrieval"
	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/infrastructure/tileset"
	"roguelike-forge-api/internal/wire"
	"roguelike-forge-api/pkg/logger"
)

func main() {
	rebuild := flag.Bool("rebuild", false, "drop and rebuild existing tileset collections")
	skipMigrate := flag.Bool("skip-migrate", false, "skip postgres schema migration")
	flag.Parse()

	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.InitWithOptions(cfg.Observability.Logging.LoggerOptions())

	ctx := context.Background()

	// 2. 初始化 PostgreSQL / Milvus / Embedding
	deps, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize bootstrap dependencies: %v", err)
	}
	defer cleanup()

	// 3. 建表
	if !*skipMigrate {
		fmt.Println("Migrating postgres schema...")
		if err := deps.PgClient.AutoMigrate(ctx); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}
	}

	// 4. 构建瓦片集索引
	source := tileset.Source(cfg.Tileset.Sources)
	reports, err := deps.Indexer.BuildAll(ctx, source, retrieval.BuildOptions{
		Rebuild:   *rebuild,
		BatchSize: cfg.Embedding.BatchSize,
	})
	for _, r := range reports {
		if r.AlreadyBuilt {
			fmt.Printf("Category %s already built, skipped\n", r.Category)
			continue
		}
		fmt.Printf("Category %s indexed: %d rows in %s\n", r.Category, r.Rows, r.Duration)
	}
	if err != nil {
		log.Fatalf("failed to build tileset index: %v", err)
	}

	if err := deps.Store.EnsureReady(ctx); err != nil {
		log.Fatalf("tileset index not ready after build: %v", err)
	}

	fmt.Println("Bootstrap completed successfully!")
}
