// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由；generation 为生成类接口的额外限流
func RegisterV1Routes(v1 *gin.RouterGroup, generation gin.HandlerFunc, h *Handlers) {
	// 资产包
	bundles := v1.Group("/bundles")
	{
		bundles.POST("", generation, h.Bundle.CreateBundle)
		bundles.GET("", h.Bundle.ListBundles)
		bundles.GET("/:bid", h.Bundle.GetBundle)
		bundles.PATCH("/:bid", h.Bundle.RenameBundle)
		bundles.DELETE("/:bid", h.Bundle.DeleteBundle)
	}

	// 地图
	maps := v1.Group("/maps")
	{
		maps.POST("", generation, h.Map.CreateMap)
	}

	// 瓦片集检索
	tilesets := v1.Group("/tilesets")
	{
		tilesets.POST("/search", h.Tileset.Search)
	}

	// 任务
	jobs := v1.Group("/jobs")
	{
		jobs.GET("", h.Job.ListJobs)
		jobs.GET("/:jid", h.Job.GetJob)
	}
}
