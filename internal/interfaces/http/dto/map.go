package dto

import (
	"roguelike-forge-api/internal/application/mapgen"
	"roguelike-forge-api/internal/domain/entity"
)

// MapResponse 同步地图生成结果
type MapResponse struct {
	Map         *entity.CompiledMap  `json:"map"`
	Catalogs    entity.MapCatalogs   `json:"catalogs"`
	Usage       entity.UsageMetadata `json:"usage_metadata"`
	LLMProvider string               `json:"llm_provider"`
	LLMModel    string               `json:"llm_model"`
	DurationMs  int64                `json:"duration_ms"`
}

// ToMapResponse 转换地图生成结果
func ToMapResponse(res *mapgen.Result) *MapResponse {
	return &MapResponse{
		Map:         res.Map,
		Catalogs:    res.Catalogs,
		Usage:       res.Usage,
		LLMProvider: res.LLMProvider,
		LLMModel:    res.LLMModel,
		DurationMs:  res.DurationMs,
	}
}
