// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
	"roguelike-forge-api/internal/interfaces/http/dto"
)

// JobHandler 任务处理器
type JobHandler struct {
	jobs JobService
}

// NewJobHandler 创建任务处理器
func NewJobHandler(jobs JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GetJob 获取任务详情
// @Summary 获取任务详情
// @Description 获取指定任务的状态、进度与结果
// @Tags Jobs
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/jobs/{jid} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), dto.BindJobID(c))
	if err != nil {
		respondError(c, "get job", err)
		return
	}
	dto.Success(c, dto.ToJobResponse(job))
}

// ListJobs 任务列表
// @Summary 任务列表
// @Tags Jobs
// @Produce json
// @Param type query string false "任务类型"
// @Param status query string false "任务状态"
// @Success 200 {object} dto.Response[dto.JobListResponse]
// @Router /api/v1/jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	var filter *repository.JobFilter
	if t, s := c.Query("type"), c.Query("status"); t != "" || s != "" {
		filter = &repository.JobFilter{
			JobType: entity.JobType(t),
			Status:  entity.JobStatus(s),
		}
	}

	result, err := h.jobs.List(c.Request.Context(), filter, dto.BindPage(c).Pagination())
	if err != nil {
		respondError(c, "list jobs", err)
		return
	}

	dto.SuccessWithPage(c, dto.ToJobListResponse(result.Items), dto.PageMetaOf(result))
}
