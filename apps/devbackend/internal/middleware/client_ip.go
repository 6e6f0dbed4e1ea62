package middleware

import (
	"net"
	"strings"

	"DoorbellCall/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
)

const (
	headerXRealIP       = "X-Real-IP"
	headerXForwardedFor = "X-Forwarded-For"
	ctxKeyClientIP      = "client_ip"
)

// GetClientIP 客户端真实 IP，优先级：X-Real-IP > X-Forwarded-For > RemoteAddr
func GetClientIP(c *gin.Context) string {
	if ip := c.GetHeader(headerXRealIP); ip != "" {
		return strings.TrimSpace(ip)
	}
	if xff := c.GetHeader(headerXForwardedFor); xff != "" {
		// 取第一个 IP（原始客户端）
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	return c.ClientIP()
}

// GetClientIPSafe 获取并校验 IP 格式
func GetClientIPSafe(c *gin.Context) (string, bool) {
	ip := ClientIPFromGinContext(c)
	if ip == "" {
		ip = GetClientIP(c)
	}
	if ip == "" || net.ParseIP(ip) == nil {
		return "", false
	}
	return ip, true
}

// ClientIPMiddleware 注入 IP 到 gin Context 和 request ctx
func ClientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := GetClientIP(c)
		c.Set(ctxKeyClientIP, ip)
		c.Request = c.Request.WithContext(ctxmeta.WithClientIP(c.Request.Context(), ip))
		c.Next()
	}
}

// ClientIPFromGinContext 从 gin Context 取 IP
func ClientIPFromGinContext(c *gin.Context) string {
	if ip, exists := c.Get(ctxKeyClientIP); exists {
		if s, ok := ip.(string); ok {
			return s
		}
	}
	return ""
}
