package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/application/mapgen"
	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/interfaces/http/dto"
)

// MapGenerator 地图生成
type MapGenerator interface {
	Generate(ctx context.Context, theme string, opts ...mapgen.Option) (*mapgen.Result, error)
}

// MapHandler 地图处理器
type MapHandler struct {
	generator   MapGenerator
	jobs        JobService
	syncTimeout time.Duration
}

// NewMapHandler 创建地图处理器
func NewMapHandler(generator MapGenerator, jobs JobService, syncTimeout time.Duration) *MapHandler {
	return &MapHandler{generator: generator, jobs: jobs, syncTimeout: syncTimeout}
}

// CreateMap 生成地图
// @Summary 生成地图
// @Description 六阶段生成目录后编译为游戏地图；async=true 时创建后台任务
// @Tags Maps
// @Accept json
// @Produce json
// @Param body body dto.GenerateRequest true "主题描述"
// @Success 200 {object} dto.Response[dto.MapResponse]
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/v1/maps [post]
func (h *MapHandler) CreateMap(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.Async {
		job, err := h.jobs.Submit(c.Request.Context(), entity.JobTypeMapGen, req.Theme, c.GetHeader(IdempotencyKeyHeader))
		if err != nil {
			respondError(c, "submit map job", err)
			return
		}
		dto.Accepted(c, dto.ToJobResponse(job))
		return
	}

	ctx := c.Request.Context()
	if h.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
	}

	res, err := h.generator.Generate(ctx, req.Theme)
	if err != nil {
		respondError(c, "generate map", err)
		return
	}
	dto.Success(c, dto.ToMapResponse(res))
}
