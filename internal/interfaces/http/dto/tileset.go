package dto

import "roguelike-forge-api/internal/application/retrieval"

// TilesetSearchRequest 瓦片集检索请求
type TilesetSearchRequest struct {
	Query    string `json:"query" binding:"required,max=2000"`
	Category string `json:"category" binding:"required,oneof=items environments entities"`
	K        int    `json:"k,omitempty" binding:"omitempty,min=1,max=50"`
}

// TilesetResult 检索命中
type TilesetResult struct {
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Description string  `json:"description"`
	Image       string  `json:"image,omitempty"`
	Score       float32 `json:"score"`
}

// TilesetSearchResponse 检索响应
type TilesetSearchResponse struct {
	Category string           `json:"category"`
	Results  []*TilesetResult `json:"results"`
}

// ToTilesetSearchResponse 转换检索命中
func ToTilesetSearchResponse(category retrieval.Category, matches []retrieval.TileMatch) *TilesetSearchResponse {
	resp := &TilesetSearchResponse{
		Category: category.String(),
		Results:  make([]*TilesetResult, 0, len(matches)),
	}
	for _, m := range matches {
		resp.Results = append(resp.Results, &TilesetResult{
			X:           m.X,
			Y:           m.Y,
			Description: m.Description,
			Image:       m.Image,
			Score:       m.Score,
		})
	}
	return resp
}
