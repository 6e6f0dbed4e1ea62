package middleware

import (
	"errors"
	"net/http"
	"strings"

	"DoorbellCall/apps/devbackend/internal/service"
	"DoorbellCall/consts"
	"DoorbellCall/pkg/ctxmeta"
	"DoorbellCall/pkg/result"

	"github.com/gin-gonic/gin"
)

const (
	ctxKeyClaims    = "session_claims"
	ctxKeySessionID = "session_id"
)

// TokenAuthenticator 校验会话 token
type TokenAuthenticator interface {
	Authenticate(token string) (*service.SessionClaims, error)
}

// SessionAuthMiddleware 会话 token 认证。
// 从 Authorization: Bearer <token> 取 token，校验通过后把 claims 放入 Context。
func SessionAuthMiddleware(auth TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 读取 Authorization
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// 客户端请求错误，属于正常业务流程，不记录日志
			result.Abort(c, http.StatusUnauthorized, consts.CodeUnauthorized)
			return
		}

		// 2. 校验格式
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			result.Abort(c, http.StatusUnauthorized, consts.CodeUnauthorized)
			return
		}

		// 3. 校验 token 与会话
		claims, err := auth.Authenticate(parts[1])
		if err != nil {
			var code int32 = consts.CodeInvalidToken
			if errors.Is(err, service.ErrTokenExpired) {
				code = consts.CodeTokenExpired
			}
			result.Abort(c, http.StatusUnauthorized, code)
			return
		}

		// 4. 写入 Context
		c.Set(ctxKeyClaims, claims)
		c.Set(ctxKeySessionID, claims.SessionID)
		c.Request = c.Request.WithContext(ctxmeta.WithSessionID(c.Request.Context(), claims.SessionID))

		c.Next()
	}
}

// GetSessionClaims 获取当前请求的会话 claims
func GetSessionClaims(c *gin.Context) (*service.SessionClaims, bool) {
	v, exists := c.Get(ctxKeyClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*service.SessionClaims)
	return claims, ok
}
