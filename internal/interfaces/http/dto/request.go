// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/domain/repository"
)

// PageRequest 分页查询参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

// Pagination 转换为仓储分页参数，越界值在此收敛
func (r PageRequest) Pagination() repository.Pagination {
	return repository.NewPagination(r.Page, r.PageSize)
}

// BindPage 读取 page/page_size，非法值按缺省处理
func BindPage(c *gin.Context) PageRequest {
	return PageRequest{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", repository.DefaultPageSize),
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return v
}

// BindBundleID 路径参数 :bid
func BindBundleID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("bid"))
}

// BindJobID 路径参数 :jid
func BindJobID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("jid"))
}
