// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const readyTimeout = 2 * time.Second

// 单项依赖状态
const (
	checkOK       = "ok"
	checkError    = "error"
	checkDegraded = "degraded"
	checkMissing  = "missing"
)

// HealthChecker 依赖探活
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type dependency struct {
	name     string
	checker  HealthChecker
	optional bool
}

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	version string
	deps    []dependency
}

// NewHealthHandler optional 中的依赖失败只标记 degraded，不影响就绪
func NewHealthHandler(version string, required, optional map[string]HealthChecker) *HealthHandler {
	deps := make([]dependency, 0, len(required)+len(optional))
	for name, c := range required {
		deps = append(deps, dependency{name: name, checker: c})
	}
	for name, c := range optional {
		deps = append(deps, dependency{name: name, checker: c, optional: true})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].name < deps[j].name })
	return &HealthHandler{version: version, deps: deps}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: checkOK, Version: h.version})
}

// Live
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: checkOK})
}

// Ready 并发探测所有依赖，必需依赖全部可用才返回 200
// @Summary 就绪检查
// @Description 检查 postgres / redis / milvus 是否可用
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	results := make([]*readinessCheck, len(h.deps))
	var g errgroup.Group
	for i, d := range h.deps {
		g.Go(func() error {
			results[i] = probe(ctx, d.checker)
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: checkOK, Checks: make(map[string]*readinessCheck, len(h.deps))}
	for i, d := range h.deps {
		check := results[i]
		switch {
		case check.Status == checkOK:
		case d.optional:
			check.Status = checkDegraded
		default:
			resp.Status = "not_ready"
		}
		resp.Checks[d.name] = check
	}

	status := http.StatusOK
	if resp.Status != checkOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func probe(ctx context.Context, checker HealthChecker) *readinessCheck {
	if checker == nil {
		return &readinessCheck{Status: checkMissing, Error: "client not configured"}
	}
	start := time.Now()
	err := checker.HealthCheck(ctx)
	check := &readinessCheck{Status: checkOK, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status, check.Error = checkError, err.Error()
	}
	return check
}
