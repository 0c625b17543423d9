// Package middleware 网关的 Gin 中间件：请求标识、追踪、指标、限流与恢复
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"roguelike-forge-api/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"

	maxRequestIDLen = 128
)

// RequestID 沿用调用方的请求 ID，缺失或过长时生成新的 UUID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(string(logger.RequestIDKey), id)
		c.Header(RequestIDHeader, id)
		bindLogField(c, logger.RequestIDKey, id)
		c.Next()
	}
}

// Tracing otelgin 建立 span 后，把 trace/span ID 写入日志上下文与响应头
func Tracing(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), exposeSpan}
}

func exposeSpan(c *gin.Context) {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.IsValid() {
		c.Next()
		return
	}
	traceID, spanID := sc.TraceID().String(), sc.SpanID().String()
	c.Set(string(logger.TraceIDKey), traceID)
	c.Set(string(logger.SpanIDKey), spanID)
	c.Header(TraceIDHeader, traceID)
	bindLogField(c, logger.TraceIDKey, traceID)
	bindLogField(c, logger.SpanIDKey, spanID)
	c.Next()
}

func bindLogField(c *gin.Context, key logger.ContextKey, value string) {
	c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), key, value))
}
