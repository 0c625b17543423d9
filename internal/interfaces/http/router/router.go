// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/interfaces/http/handler"
	"roguelike-forge-api/internal/interfaces/http/middleware"
	"roguelike-forge-api/pkg/logger"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Bundle  *handler.BundleHandler
	Map     *handler.MapHandler
	Tileset *handler.TilesetHandler
	Job     *handler.JobHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers *Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers *Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := entity.RegisterValidations(v); err != nil {
			logger.Default().Warn("failed to register binding validations", "error", err)
		}
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Tracing(r.cfg.App.Name)...)
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics("/health/live", "/health/ready", r.metricsPath()))
	}
}

func (r *Router) metricsPath() string {
	if p := r.cfg.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

func (r *Router) setupRoutes() {
	h := r.handlers

	health := r.engine.Group("/health")
	{
		health.GET("", h.Health.Health)
		health.GET("/live", h.Health.Live)
		health.GET("/ready", h.Health.Ready)
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	rl := r.cfg.Security.RateLimit
	v1 := r.engine.Group("/api/v1")
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: rl.Enabled,
		Scope:   "api",
		Limit:   rl.Limit,
		Window:  rl.Window,
	}, r.limiter))

	generation := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: rl.Enabled && rl.GenerationLimit > 0,
		Scope:   "generation",
		Limit:   rl.GenerationLimit,
		Window:  rl.Window,
	}, r.limiter)

	RegisterV1Routes(v1, generation, h)
}
