package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/domain/repository"
	"roguelike-forge-api/pkg/errors"
)

// Response 统一响应结构
type Response[T any] struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    T         `json:"data,omitempty"`
	Meta    *PageMeta `json:"meta,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// PageMetaOf 取分页结果的元数据
func PageMetaOf[T any](r *repository.PagedResult[T]) *PageMeta {
	return &PageMeta{
		Page:       r.Page,
		PageSize:   r.PageSize,
		Total:      r.Total,
		TotalPages: r.TotalPages,
		HasNext:    r.HasNext(),
	}
}

// ErrorDetail 错误详情，ErrorCode 对应 pkg/errors 中的业务码
type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func reply[T any](c *gin.Context, status int, message string, data T, meta *PageMeta) {
	c.JSON(status, Response[T]{
		Code:    status,
		Message: message,
		Data:    data,
		Meta:    meta,
		TraceID: c.GetString("trace_id"),
	})
}

// Success 200
func Success[T any](c *gin.Context, data T) {
	reply(c, http.StatusOK, "success", data, nil)
}

// SuccessWithPage 200，附带分页元数据
func SuccessWithPage[T any](c *gin.Context, data T, meta *PageMeta) {
	reply(c, http.StatusOK, "success", data, meta)
}

// Created 201
func Created[T any](c *gin.Context, data T) {
	reply(c, http.StatusCreated, "created", data, nil)
}

// Accepted 202，异步任务已入队
func Accepted[T any](c *gin.Context, data T) {
	reply(c, http.StatusAccepted, "accepted", data, nil)
}

// NoContent 204
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// ErrorWithDetail 返回带详情的错误响应
func ErrorWithDetail(c *gin.Context, status int, message string, detail *ErrorDetail) {
	c.JSON(status, ErrorResponse{
		Code:    status,
		Message: message,
		Error:   detail,
		TraceID: c.GetString("trace_id"),
	})
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	ErrorWithDetail(c, http.StatusBadRequest, message, &ErrorDetail{ErrorCode: string(errors.CodeInvalidParam)})
}

// InternalError 500，不向调用方暴露内部原因
func InternalError(c *gin.Context, message string) {
	ErrorWithDetail(c, http.StatusInternalServerError, message, &ErrorDetail{ErrorCode: string(errors.CodeInternalError)})
}

// FromAppError 按应用错误的 HTTP 状态输出错误响应
func FromAppError(c *gin.Context, appErr *errors.AppError) {
	ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}
