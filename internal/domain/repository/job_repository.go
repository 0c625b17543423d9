package repository

import (
	"context"

	"roguelike-forge-api/internal/domain/entity"
)

// JobFilter 任务过滤条件
type JobFilter struct {
	JobType entity.JobType
	Status  entity.JobStatus
}

// JobRepository 生成任务仓储接口
type JobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.GenerationJob) error

	// GetByID 根据 ID 获取任务，未命中返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.GenerationJob, error)

	// GetByIdempotencyKey 根据幂等键获取任务，未命中返回 (nil, nil)
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.GenerationJob, error)

	// Update 全量更新任务
	Update(ctx context.Context, job *entity.GenerationJob) error

	// MarkRunning 仅当任务处于 pending 时置为 running，返回是否抢占成功
	MarkRunning(ctx context.Context, id string) (bool, error)

	// UpdateProgress 更新任务阶段与进度
	UpdateProgress(ctx context.Context, id, stage string, progress int) error

	// SetResult 写入终态（completed / failed）及结果
	SetResult(ctx context.Context, job *entity.GenerationJob) error

	// List 按创建时间倒序分页
	List(ctx context.Context, filter *JobFilter, pagination Pagination) (*PagedResult[*entity.GenerationJob], error)
}
