package middleware

import (
	"net/http"
	"runtime/debug"

	"DoorbellCall/consts"
	"DoorbellCall/pkg/logger"
	"DoorbellCall/pkg/result"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinRecovery 捕获 handler panic，记录日志后返回 500
func GinRecovery(stack bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				fields := []zap.Field{
					logger.Any("panic", r),
					logger.String("path", c.Request.URL.Path),
				}
				if stack {
					fields = append(fields, logger.String("stack", string(debug.Stack())))
				}
				logger.Error(c.Request.Context(), "请求处理 panic", fields...)
				result.Abort(c, http.StatusInternalServerError, consts.CodeInternalError)
			}
		}()
		c.Next()
	}
}
