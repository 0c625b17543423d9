package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
)

var _ repository.BundleRepository = (*BundleRepository)(nil)

// BundleRepository SQLite 资产包仓储
type BundleRepository struct {
	store *Store
}

// NewBundleRepository 创建仓储
func NewBundleRepository(store *Store) *BundleRepository {
	return &BundleRepository{store: store}
}

// Create 持久化资产包
func (r *BundleRepository) Create(ctx context.Context, bundle *entity.AssetBundle) error {
	if bundle.ID == "" {
		bundle.ID = uuid.NewString()
	}
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = time.Now().UTC()
	}
	// 毫秒精度，与读回的值保持一致
	bundle.CreatedAt = bundle.CreatedAt.UTC().Truncate(time.Millisecond)

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	levels, err := json.Marshal(bundle.LevelNames())
	if err != nil {
		return fmt.Errorf("encode level names: %w", err)
	}

	ts := bundle.CreatedAt.UnixMilli()
	_, err = r.store.db.ExecContext(ctx, `
INSERT INTO asset_bundles (
	id, name, raw_description, llm_provider, llm_model,
	generation_time_seconds, level_names, bundle_data, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		bundle.ID, bundle.Name, bundle.RawDescription, bundle.LLMProvider, bundle.LLMModel,
		bundle.GenerationTimeSeconds, string(levels), string(data), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

// List 按创建时间倒序分页
func (r *BundleRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.AssetBundleSummary], error) {
	var total int64
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM asset_bundles`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count bundles: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, `
SELECT id, name, llm_model, generation_time_seconds, created_at
FROM asset_bundles
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?
`, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	items := make([]*entity.AssetBundleSummary, 0, pagination.Limit())
	for rows.Next() {
		var (
			s  entity.AssetBundleSummary
			ts int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.LLMModel, &s.GenerationTimeSeconds, &ts); err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		s.CreatedAt = time.UnixMilli(ts).UTC()
		items = append(items, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bundles: %w", err)
	}
	return repository.NewPagedResult(items, total, pagination), nil
}

// GetByID 获取完整资产包，未命中返回 (nil, nil)
func (r *BundleRepository) GetByID(ctx context.Context, id string) (*entity.AssetBundle, error) {
	var (
		name string
		data string
		ts   int64
	)
	err := r.store.db.QueryRowContext(ctx,
		`SELECT name, bundle_data, created_at FROM asset_bundles WHERE id = ?`, id,
	).Scan(&name, &data, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}

	var b entity.AssetBundle
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("decode bundle %s: %w", id, err)
	}
	b.ID = id
	b.Name = name
	b.CreatedAt = time.UnixMilli(ts).UTC()
	return &b, nil
}

// Delete 删除资产包
func (r *BundleRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM asset_bundles WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete bundle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete bundle: %w", err)
	}
	return n > 0, nil
}

// Rename 修改名称
func (r *BundleRepository) Rename(ctx context.Context, id, name string) (bool, error) {
	res, err := r.store.db.ExecContext(ctx,
		`UPDATE asset_bundles SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return false, fmt.Errorf("rename bundle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rename bundle: %w", err)
	}
	return n > 0, nil
}
