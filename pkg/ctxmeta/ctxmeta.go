package ctxmeta

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey string

const (
	keyTraceID   ctxKey = "trace_id"
	keySessionID ctxKey = "session_id"
	keyCallID    ctxKey = "call_id"
	keyDeviceID  ctxKey = "device_id"
	keyClientIP  ctxKey = "client_ip"
)

// GinTraceKey gin.Context 中保存 trace_id 的 key（与 TraceLogger 中间件一致）
const GinTraceKey = "trace_id"

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, keySessionID, sessionID)
}

func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, keyCallID, callID)
}

func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, keyDeviceID, deviceID)
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

// TraceID 先取 ctxmeta 写入的值，再兼容 gin.Context 里 c.Set 的字符串 key
func TraceID(ctx context.Context) string {
	if v := str(ctx, keyTraceID); v != "" {
		return v
	}
	if v, ok := ctx.Value(GinTraceKey).(string); ok {
		return v
	}
	return ""
}

func SessionID(ctx context.Context) string { return str(ctx, keySessionID) }
func CallID(ctx context.Context) string    { return str(ctx, keyCallID) }
func DeviceID(ctx context.Context) string  { return str(ctx, keyDeviceID) }
func ClientIP(ctx context.Context) string  { return str(ctx, keyClientIP) }

// TraceIDFromGin 读取 TraceLogger 中间件写入的 trace_id
func TraceIDFromGin(c *gin.Context) string {
	return c.GetString(GinTraceKey)
}

// Propagate 把需要透传的字段复制到新的根 ctx（异步任务脱离请求生命周期时使用）
func Propagate(parent context.Context) context.Context {
	ctx := context.Background()
	if v := TraceID(parent); v != "" {
		ctx = WithTraceID(ctx, v)
	}
	if v := SessionID(parent); v != "" {
		ctx = WithSessionID(ctx, v)
	}
	if v := CallID(parent); v != "" {
		ctx = WithCallID(ctx, v)
	}
	if v := DeviceID(parent); v != "" {
		ctx = WithDeviceID(ctx, v)
	}
	if v := ClientIP(parent); v != "" {
		ctx = WithClientIP(ctx, v)
	}
	return ctx
}

func str(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
