// Package main 异步生成任务执行器（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/infrastructure/messaging"
	einoobs "roguelike-forge-api/internal/observability/eino"
	"roguelike-forge-api/internal/wire"
	"roguelike-forge-api/pkg/logger"
	"roguelike-forge-api/pkg/tracer"
)

const serviceName = "job-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.InitWithOptions(cfg.Observability.Logging.LoggerOptions())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal(context.Background(), "job-worker exited", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.FromContext(ctx)

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to flush traces", "error", err)
		}
	}()
	einoobs.Init()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize worker: %w", err)
	}
	defer cleanup()

	sc := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(worker.RedisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamForgeGen,
		Group:         messaging.ConsumerGroupGenWorkers,
		BlockTimeout:  sc.BlockTimeout,
		ClaimInterval: sc.ClaimInterval,
		ClaimMinIdle:  sc.ClaimMinIdle,
		MaxDeliveries: sc.RetryLimit,
		Backoff: messaging.Backoff{
			Initial: sc.RetryBackoff.Initial,
			Max:     sc.RetryBackoff.Max,
			Factor:  sc.RetryBackoff.Multiplier,
		},
		DeadLetterAlert: sc.DLQAlertThreshold,
	})
	messaging.HandleJSON(consumer, messaging.MessageTypeGenerationJob, worker.Jobs.Run)

	log.Info("job-worker started", "consumer", consumer.Name(), "stream", messaging.StreamForgeGen)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		consumer.WatchDeadLetters(gctx)
		return nil
	})
	return g.Wait()
}
