package util

import (
	"DoorbellCall/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderXRequestID = "X-Request-ID"

// TraceLogger 追踪中间件，生成或获取 trace_id 并存入 Gin 上下文
func TraceLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 优先使用客户端带来的 X-Request-ID（客户端每个请求的 idProcess）
		traceId := c.GetHeader(HeaderXRequestID)
		if traceId == "" {
			traceId = uuid.New().String()
		}

		// 2. 放入 Gin 上下文和 request ctx，handler / service 都能取到
		c.Set(ctxmeta.GinTraceKey, traceId)
		c.Request = c.Request.WithContext(ctxmeta.WithTraceID(c.Request.Context(), traceId))

		// 3. 回写响应头，方便排查
		c.Header(HeaderXRequestID, traceId)

		c.Next()
	}
}

// NewUUID 生成新的 UUID
func NewUUID() string {
	return uuid.New().String()
}

// NewProcessID 生成请求体里的 idProcess（每个请求一个）
func NewProcessID() string {
	return uuid.NewString()
}
