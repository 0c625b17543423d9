package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/application/bundle"
	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
	"roguelike-forge-api/internal/interfaces/http/dto"
	"roguelike-forge-api/pkg/errors"
	"roguelike-forge-api/pkg/logger"
)

// BundleGenerator 资产包生成
type BundleGenerator interface {
	Generate(ctx context.Context, theme string, opts ...bundle.Option) (*entity.AssetBundle, error)
}

// BundleHandler 资产包处理器
type BundleHandler struct {
	generator   BundleGenerator
	bundleRepo  repository.BundleRepository
	jobs        JobService
	syncTimeout time.Duration
}

// NewBundleHandler 创建资产包处理器
func NewBundleHandler(generator BundleGenerator, bundleRepo repository.BundleRepository, jobs JobService, syncTimeout time.Duration) *BundleHandler {
	return &BundleHandler{
		generator:   generator,
		bundleRepo:  bundleRepo,
		jobs:        jobs,
		syncTimeout: syncTimeout,
	}
}

// CreateBundle 生成资产包
// @Summary 生成资产包
// @Description 同步生成并保存资产包；async=true 时创建后台任务
// @Tags Bundles
// @Accept json
// @Produce json
// @Param body body dto.GenerateRequest true "主题描述"
// @Success 201 {object} dto.Response[entity.AssetBundle]
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/v1/bundles [post]
func (h *BundleHandler) CreateBundle(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.Async {
		job, err := h.jobs.Submit(c.Request.Context(), entity.JobTypeBundleGen, req.Theme, c.GetHeader(IdempotencyKeyHeader))
		if err != nil {
			respondError(c, "submit bundle job", err)
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

	b, err := h.generator.Generate(ctx, req.Theme)
	if err != nil {
		respondError(c, "generate bundle", err)
		return
	}
	if err := h.bundleRepo.Create(ctx, b); err != nil {
		respondError(c, "save bundle", err)
		return
	}
	logger.Info(logger.WithContext(ctx, logger.BundleIDKey, b.ID), "bundle created", "name", b.Name)
	dto.Created(c, b)
}

// ListBundles 资产包列表
// @Summary 资产包列表
// @Tags Bundles
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.BundleListResponse]
// @Router /api/v1/bundles [get]
func (h *BundleHandler) ListBundles(c *gin.Context) {
	result, err := h.bundleRepo.List(c.Request.Context(), dto.BindPage(c).Pagination())
	if err != nil {
		respondError(c, "list bundles", err)
		return
	}

	dto.SuccessWithPage(c, dto.ToBundleListResponse(result), dto.PageMetaOf(result))
}

// GetBundle 资产包详情
// @Summary 资产包详情
// @Tags Bundles
// @Produce json
// @Param bid path string true "资产包 ID"
// @Success 200 {object} dto.Response[entity.AssetBundle]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/bundles/{bid} [get]
func (h *BundleHandler) GetBundle(c *gin.Context) {
	b, err := h.bundleRepo.GetByID(c.Request.Context(), dto.BindBundleID(c))
	if err != nil {
		respondError(c, "get bundle", err)
		return
	}
	if b == nil {
		dto.FromAppError(c, errors.ErrBundleNotFound)
		return
	}
	dto.Success(c, b)
}

// RenameBundle 重命名资产包
// @Summary 重命名资产包
// @Tags Bundles
// @Accept json
// @Produce json
// @Param bid path string true "资产包 ID"
// @Param body body dto.RenameBundleRequest true "新名称"
// @Success 200 {object} dto.Response[dto.RenameBundleResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/bundles/{bid} [patch]
func (h *BundleHandler) RenameBundle(c *gin.Context) {
	id := dto.BindBundleID(c)

	var req dto.RenameBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := entity.ValidateTitle(name); err != nil {
		respondError(c, "rename bundle", err)
		return
	}

	found, err := h.bundleRepo.Rename(c.Request.Context(), id, name)
	if err != nil {
		respondError(c, "rename bundle", err)
		return
	}
	if !found {
		dto.FromAppError(c, errors.ErrBundleNotFound)
		return
	}
	dto.Success(c, &dto.RenameBundleResponse{ID: id, Name: name})
}

// DeleteBundle 删除资产包
// @Summary 删除资产包
// @Tags Bundles
// @Param bid path string true "资产包 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/bundles/{bid} [delete]
func (h *BundleHandler) DeleteBundle(c *gin.Context) {
	found, err := h.bundleRepo.Delete(c.Request.Context(), dto.BindBundleID(c))
	if err != nil {
		respondError(c, "delete bundle", err)
		return
	}
	if !found {
		dto.FromAppError(c, errors.ErrBundleNotFound)
		return
	}
	dto.NoContent(c)
}
