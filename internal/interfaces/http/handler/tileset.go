package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/application/retrieval"
	"roguelike-forge-api/internal/interfaces/http/dto"
)

const defaultSearchK = 5

// TilesetSearcher 瓦片集检索
type TilesetSearcher interface {
	Search(ctx context.Context, query string, category retrieval.Category, k int) ([]retrieval.TileMatch, error)
}

// TilesetHandler 瓦片集检索处理器
type TilesetHandler struct {
	store TilesetSearcher
}

// NewTilesetHandler 创建瓦片集检索处理器
func NewTilesetHandler(store TilesetSearcher) *TilesetHandler {
	return &TilesetHandler{store: store}
}

// Search 按类别检索最相近的纹理
// @Summary 检索瓦片集
// @Tags Tilesets
// @Accept json
// @Produce json
// @Param body body dto.TilesetSearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.TilesetSearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse "索引未构建"
// @Router /api/v1/tilesets/search [post]
func (h *TilesetHandler) Search(c *gin.Context) {
	var req dto.TilesetSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	category, err := retrieval.ParseCategory(req.Category)
	if err != nil {
		respondError(c, "search tileset", err)
		return
	}
	k := req.K
	if k == 0 {
		k = defaultSearchK
	}

	matches, err := h.store.Search(c.Request.Context(), req.Query, category, k)
	if err != nil {
		respondError(c, "search tileset", err)
		return
	}
	dto.Success(c, dto.ToTilesetSearchResponse(category, matches))
}
