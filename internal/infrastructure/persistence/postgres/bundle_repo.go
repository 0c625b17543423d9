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

var _ repository.BundleRepository = (*BundleRepository)(nil)

// BundleRepository 资产包仓储实现
type BundleRepository struct {
	client *Client
}

// NewBundleRepository 创建资产包仓储
func NewBundleRepository(client *Client) *BundleRepository {
	return &BundleRepository{client: client}
}

// Create 持久化资产包
func (r *BundleRepository) Create(ctx context.Context, bundle *entity.AssetBundle) error {
	ctx, span := tracer.Start(ctx, "postgres.BundleRepository.Create")
	defer span.End()

	if bundle.ID == "" {
		bundle.ID = uuid.NewString()
	}
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = time.Now().UTC()
	}
	m, err := newBundleModel(bundle)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := getDB(ctx, r.client.db).Create(m).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	return nil
}

// List 分页列出资产包摘要
func (r *BundleRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.AssetBundleSummary], error) {
	ctx, span := tracer.Start(ctx, "postgres.BundleRepository.List")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&bundleModel{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count bundles: %w", err)
	}

	var rows []bundleSummaryRow
	if err := query.Select("id", "name", "llm_model", "generation_time_seconds", "created_at").
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}

	items := make([]*entity.AssetBundleSummary, 0, len(rows))
	for _, row := range rows {
		items = append(items, &entity.AssetBundleSummary{
			ID:                    row.ID,
			Name:                  row.Name,
			LLMModel:              row.LLMModel,
			GenerationTimeSeconds: row.GenerationTimeSeconds,
			CreatedAt:             row.CreatedAt,
		})
	}
	return repository.NewPagedResult(items, total, pagination), nil
}

// GetByID 获取完整资产包
func (r *BundleRepository) GetByID(ctx context.Context, id string) (*entity.AssetBundle, error) {
	ctx, span := tracer.Start(ctx, "postgres.BundleRepository.GetByID")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var m bundleModel
	if err := getDB(ctx, r.client.db).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get bundle: %w", err)
	}
	return m.toEntity()
}

// Delete 删除资产包
func (r *BundleRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.BundleRepository.Delete")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	res := getDB(ctx, r.client.db).Delete(&bundleModel{}, "id = ?", id)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to delete bundle: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Rename 更新资产包名称
func (r *BundleRepository) Rename(ctx context.Context, id, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.BundleRepository.Rename")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	res := getDB(ctx, r.client.db).Model(&bundleModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":       name,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to rename bundle: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
