package repository

import (
	"context"

	"roguelike-forge-api/internal/domain/entity"
)

// BundleRepository 资产包仓储接口
//
// 未命中时 GetByID 返回 (nil, nil)；Delete/Rename 以 bool 报告目标是否存在。
type BundleRepository interface {
	// Create 持久化资产包并回填 ID 与 CreatedAt
	Create(ctx context.Context, bundle *entity.AssetBundle) error

	// List 按创建时间倒序分页
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.AssetBundleSummary], error)

	// GetByID 根据 ID 获取完整资产包
	GetByID(ctx context.Context, id string) (*entity.AssetBundle, error)

	// Delete 删除资产包
	Delete(ctx context.Context, id string) (bool, error)

	// Rename 修改资产包名称
	Rename(ctx context.Context, id, name string) (bool, error)
}
