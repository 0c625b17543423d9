// Package job 异步生成任务的提交与执行
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roguelike-forge-api/internal/application/bundle"
	"roguelike-forge-api/internal/application/mapgen"
	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
	"roguelike-forge-api/internal/infrastructure/messaging"
	"roguelike-forge-api/pkg/logger"
	"roguelike-forge-api/pkg/metrics"
	"roguelike-forge-api/pkg/tracer"
)

// BundleGenerator 资产包生成
type BundleGenerator interface {
	Generate(ctx context.Context, theme string, opts ...bundle.Option) (*entity.AssetBundle, error)
}

// MapGenerator 地图生成
type MapGenerator interface {
	Generate(ctx context.Context, theme string, opts ...mapgen.Option) (*mapgen.Result, error)
}

// Publisher 任务消息投递
type Publisher interface {
	PublishGenJob(ctx context.Context, job *messaging.GenerationJobMessage) (string, error)
}

// Service 生成任务服务
type Service struct {
	jobs      repository.JobRepository
	bundles   repository.BundleRepository
	bundleGen BundleGenerator
	mapGen    MapGenerator
	publisher Publisher
	tx        repository.Transactor
}

// ServiceOption 任务服务可选项
type ServiceOption func(*Service)

// WithTransactor 资产包落库与任务结果在同一事务中提交
func WithTransactor(tx repository.Transactor) ServiceOption {
	return func(s *Service) {
		s.tx = tx
	}
}

// NewService 创建任务服务
func NewService(
	jobs repository.JobRepository,
	bundles repository.BundleRepository,
	bundleGen BundleGenerator,
	mapGen MapGenerator,
	publisher Publisher,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		jobs:      jobs,
		bundles:   bundles,
		bundleGen: bundleGen,
		mapGen:    mapGen,
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithTransaction(ctx, fn)
}

type inputParams struct {
	Theme string `json:"theme"`
}

// Submit 创建任务并投递到队列；幂等键已存在时直接返回已有任务
func (s *Service) Submit(ctx context.Context, jobType entity.JobType, theme, idempotencyKey string) (*entity.GenerationJob, error) {
	ctx, span := tracer.Start(ctx, "job.Submit", trace.WithAttributes(attribute.String("job.type", string(jobType))))
	defer span.End()

	if !jobType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil, ErrEmptyTheme
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)

	if idempotencyKey != "" {
		existing, err := s.jobs.GetByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			tracer.Fail(span, err)
			return nil, err
		}
		if existing != nil {
			logger.Info(ctx, "idempotent job submission", "job_id", existing.ID)
			return existing, nil
		}
	}

	job := entity.NewGenerationJob(jobType, theme)
	job.IdempotencyKey = idempotencyKey
	job.InputParams, _ = json.Marshal(inputParams{Theme: theme})

	if err := s.jobs.Create(ctx, job); err != nil {
		// 并发提交同一幂等键时唯一索引冲突，返回胜出的任务
		if idempotencyKey != "" {
			if existing, gerr := s.jobs.GetByIdempotencyKey(ctx, idempotencyKey); gerr == nil && existing != nil {
				return existing, nil
			}
		}
		tracer.Fail(span, err)
		return nil, err
	}
	ctx = logger.WithContext(ctx, logger.JobIDKey, job.ID)

	if _, err := s.publisher.PublishGenJob(ctx, &messaging.GenerationJobMessage{
		JobID:   job.ID,
		JobType: string(job.JobType),
		Theme:   job.Theme,
	}); err != nil {
		job.Fail("enqueue failed: " + err.Error())
		if serr := s.jobs.SetResult(ctx, job); serr != nil {
			logger.Error(ctx, "failed to record enqueue failure", serr)
		}
		tracer.Fail(span, err)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	logger.Info(ctx, "job submitted", "type", job.JobType)
	return job, nil
}

// Get 查询任务
func (s *Service) Get(ctx context.Context, id string) (*entity.GenerationJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List 分页列出任务
func (s *Service) List(ctx context.Context, filter *repository.JobFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationJob], error) {
	return s.jobs.List(ctx, filter, pagination)
}

// Run 执行一条任务消息，由 worker 调用
//
// 生成失败会记录到任务上并返回 nil，阶段内部已经耗尽重试预算；
// 只有存储类错误返回给调用方，交由消息队列重新投递。
func (s *Service) Run(ctx context.Context, msg *messaging.GenerationJobMessage) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, msg.JobID)
	ctx, span := tracer.Start(ctx, "job.Run", trace.WithAttributes(
		attribute.String("job.id", msg.JobID),
		attribute.String("job.type", msg.JobType),
	))
	defer span.End()

	job, err := s.jobs.GetByID(ctx, msg.JobID)
	if err != nil {
		tracer.Fail(span, err)
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: job %s: %w", messaging.ErrPermanent, msg.JobID, ErrJobNotFound)
	}
	if job.Status.Terminal() {
		logger.Info(ctx, "job already finished", "status", job.Status)
		return nil
	}

	claimed, err := s.jobs.MarkRunning(ctx, job.ID)
	if err != nil {
		tracer.Fail(span, err)
		return err
	}
	// 未抢占到且处于 running：上一个 worker 中途退出后的重新投递
	if !claimed && job.Status != entity.JobStatusRunning {
		return nil
	}
	job.Start()

	progress := func(stage string, pct int) {
		job.UpdateProgress(stage, pct)
		if err := s.jobs.UpdateProgress(ctx, job.ID, stage, pct); err != nil {
			logger.Warn(ctx, "failed to update job progress", "stage", stage, "error", err.Error())
		}
	}

	var (
		genErr error
		b      *entity.AssetBundle
	)
	switch job.JobType {
	case entity.JobTypeBundleGen:
		b, genErr = s.bundleGen.Generate(ctx, job.Theme, bundle.WithProgress(progress))
	case entity.JobTypeMapGen:
		genErr = s.runMap(ctx, job, progress)
	default:
		genErr = fmt.Errorf("%w: %q", ErrUnknownJobType, job.JobType)
	}

	if genErr != nil && ctx.Err() != nil {
		// worker 退出中，任务保持 running，消息留在 pending 等待重新投递
		return fmt.Errorf("job %s interrupted: %w", job.ID, ctx.Err())
	}
	if genErr != nil {
		job.Fail(genErr.Error())
	}

	err = s.withTx(ctx, func(ctx context.Context) error {
		if b != nil {
			if err := s.bundles.Create(ctx, b); err != nil {
				return fmt.Errorf("failed to persist bundle: %w", err)
			}
			usage := b.UsageMetadata.Total()
			job.SetLLMMetrics(b.LLMProvider, b.LLMModel, usage.InputTokens, usage.OutputTokens)
			job.Complete(b.ID, nil)
		}
		return s.jobs.SetResult(ctx, job)
	})
	if err != nil {
		tracer.Fail(span, err)
		return err
	}
	metrics.JobsProcessed.WithLabelValues(string(job.JobType), string(job.Status)).Inc()

	if genErr != nil {
		logger.Error(ctx, "job failed", genErr, "type", job.JobType)
		return nil
	}
	logger.Info(ctx, "job completed",
		"type", job.JobType,
		"duration_ms", job.DurationMs,
		"tokens_prompt", job.TokensPrompt,
		"tokens_completion", job.TokensComplete,
	)
	return nil
}

func (s *Service) runMap(ctx context.Context, job *entity.GenerationJob, progress func(string, int)) error {
	res, err := s.mapGen.Generate(ctx, job.Theme, mapgen.WithProgress(progress))
	if err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode map result: %w", err)
	}
	usage := res.Usage.Total()
	job.SetLLMMetrics(res.LLMProvider, res.LLMModel, usage.InputTokens, usage.OutputTokens)
	job.Complete("", data)
	return nil
}
