package dto

import (
	"time"

	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
)

// GenerateRequest 生成请求（资产包与地图共用）
type GenerateRequest struct {
	Theme string `json:"theme" binding:"required,min=3,max=4000"`
	// Async 为 true 时创建后台任务并返回 202
	Async bool `json:"async,omitempty"`
}

// RenameBundleRequest 重命名请求
type RenameBundleRequest struct {
	Name string `json:"name" binding:"required,min=10,max=150,title_case"`
}

// BundleSummaryResponse 资产包列表项
type BundleSummaryResponse struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	LLMModel              string    `json:"llm_model"`
	GenerationTimeSeconds int       `json:"generation_time_seconds"`
	CreatedAt             time.Time `json:"created_at"`
}

// BundleListResponse 资产包列表
type BundleListResponse struct {
	Bundles []*BundleSummaryResponse `json:"bundles"`
}

// ToBundleListResponse 转换分页结果
func ToBundleListResponse(result *repository.PagedResult[*entity.AssetBundleSummary]) *BundleListResponse {
	resp := &BundleListResponse{
		Bundles: make([]*BundleSummaryResponse, 0, len(result.Items)),
	}
	for _, s := range result.Items {
		resp.Bundles = append(resp.Bundles, &BundleSummaryResponse{
			ID:                    s.ID,
			Name:                  s.Name,
			LLMModel:              s.LLMModel,
			GenerationTimeSeconds: s.GenerationTimeSeconds,
			CreatedAt:             s.CreatedAt,
		})
	}
	return resp
}

// RenameBundleResponse 重命名结果
type RenameBundleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
