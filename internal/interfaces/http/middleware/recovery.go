package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/interfaces/http/dto"
	"roguelike-forge-api/pkg/logger"
)

// Recovery 捕获 handler 的 panic，记录堆栈并返回统一的 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error(c.Request.Context(), "handler panicked", fmt.Errorf("panic: %v", rec),
				"route", routeLabel(c),
				"method", c.Request.Method,
				"stack", string(debug.Stack()),
			)
			c.Abort()
			if !c.Writer.Written() {
				dto.InternalError(c, "internal server error")
			}
		}()
		c.Next()
	}
}
