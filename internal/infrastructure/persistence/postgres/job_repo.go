package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
)

var _ repository.JobRepository = (*JobRepository)(nil)

// JobRepository 任务仓储实现
type JobRepository struct {
	client *Client
}

// NewJobRepository 创建任务仓储
func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{client: client}
}

// Create 创建任务
func (r *JobRepository) Create(ctx context.Context, job *entity.GenerationJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Create")
	defer span.End()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := getDB(ctx, r.client.db).Create(newJobModel(job)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.GenerationJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByID")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return r.first(ctx, "id = ?", id)
}

// GetByIdempotencyKey 根据幂等键获取任务
func (r *JobRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entity.GenerationJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByIdempotencyKey")
	defer span.End()

	return r.first(ctx, "idempotency_key = ?", key)
}

func (r *JobRepository) first(ctx context.Context, cond string, arg any) (*entity.GenerationJob, error) {
	var m jobModel
	if err := getDB(ctx, r.client.db).First(&m, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return m.toEntity(), nil
}

// Update 全量更新任务
func (r *JobRepository) Update(ctx context.Context, job *entity.GenerationJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Update")
	defer span.End()

	job.UpdatedAt = time.Now().UTC()
	if err := getDB(ctx, r.client.db).Save(newJobModel(job)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// MarkRunning 抢占 pending 任务
func (r *JobRepository) MarkRunning(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.MarkRunning")
	defer span.End()

	now := time.Now().UTC()
	res := getDB(ctx, r.client.db).Model(&jobModel{}).
		Where("id = ? AND status = ?", id, entity.JobStatusPending).
		Updates(map[string]interface{}{
			"status":        entity.JobStatusRunning,
			"started_at":    now,
			"updated_at":    now,
			"error_message": "",
		})
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to mark job running: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateProgress 更新任务阶段与进度
func (r *JobRepository) UpdateProgress(ctx context.Context, id, stage string, progress int) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.UpdateProgress")
	defer span.End()

	if err := getDB(ctx, r.client.db).Model(&jobModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"stage":      stage,
		"progress":   progress,
		"updated_at": time.Now().UTC(),
	}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// SetResult 写入终态与结果
func (r *JobRepository) SetResult(ctx context.Context, job *entity.GenerationJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.SetResult")
	defer span.End()

	job.UpdatedAt = time.Now().UTC()
	updates := map[string]interface{}{
		"status":            job.Status,
		"stage":             job.Stage,
		"progress":          job.Progress,
		"result_id":         job.ResultID,
		"output_result":     nullableJSON(job.OutputResult),
		"error_message":     job.ErrorMessage,
		"llm_provider":      job.LLMProvider,
		"llm_model":         job.LLMModel,
		"tokens_prompt":     job.TokensPrompt,
		"tokens_completion": job.TokensComplete,
		"duration_ms":       job.DurationMs,
		"completed_at":      job.CompletedAt,
		"updated_at":        job.UpdatedAt,
	}
	if err := getDB(ctx, r.client.db).Model(&jobModel{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set job result: %w", err)
	}
	return nil
}

// List 按条件分页列出任务
func (r *JobRepository) List(ctx context.Context, filter *repository.JobFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationJob], error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.List")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&jobModel{})
	if filter != nil {
		if filter.JobType != "" {
			query = query.Where("job_type = ?", filter.JobType)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	var models []jobModel
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&models).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*entity.GenerationJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, models[i].toEntity())
	}
	return repository.NewPagedResult(jobs, total, pagination), nil
}
