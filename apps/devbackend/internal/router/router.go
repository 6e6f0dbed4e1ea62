package router

import (
	"net/http"

	"DoorbellCall/apps/devbackend/internal/coordinator"
	"DoorbellCall/apps/devbackend/internal/handler"
	"DoorbellCall/apps/devbackend/internal/middleware"
	"DoorbellCall/consts"
	"DoorbellCall/pkg/result"
	"DoorbellCall/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 路由依赖（依赖注入）
type Deps struct {
	Sessions     *handler.SessionHandler
	Media        *handler.MediaHandler
	Doorbells    *handler.DoorbellHandler
	WS           *coordinator.WSHandler
	Auth         middleware.TokenAuthenticator
	StartLimiter *middleware.IPRateLimiter
	Metrics      *middleware.HTTPMetrics
	Gatherer     prometheus.Gatherer
}

// InitRouter 初始化路由
func InitRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		result.Fail(c, http.StatusNotFound, consts.CodeResourceNotFound)
	})
	r.NoMethod(func(c *gin.Context) {
		result.Fail(c, http.StatusMethodNotAllowed, consts.CodeMethodNotAllowed)
	})

	// 恢复中间件
	r.Use(middleware.GinRecovery(true))

	// 追踪中间件 (生成 trace_id)
	r.Use(util.TraceLogger())

	// 客户端 IP 中间件
	r.Use(middleware.ClientIPMiddleware())

	// 日志中间件
	r.Use(middleware.GinLogger())

	if d.Metrics != nil {
		r.Use(middleware.PrometheusMiddleware(d.Metrics))
	}

	// 跨域中间件
	r.Use(middleware.CorsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// 信令入口，鉴权在握手时完成
	r.GET("/ws", d.WS.ServeWS)

	api := r.Group("/api")
	{
		// 公开接口
		start := []gin.HandlerFunc{}
		if d.StartLimiter != nil {
			start = append(start, middleware.IPRateLimitMiddleware(d.StartLimiter))
		}
		api.POST("/anonymous-sessions/iniciar", append(start, d.Sessions.Start)...)
		api.GET("/media/:fileId", d.Media.Download)
		api.GET("/public/doorbells/:code", d.Doorbells.Get)

		// 需要会话 token 的接口
		auth := api.Group("")
		auth.Use(middleware.SessionAuthMiddleware(d.Auth))
		auth.POST("/anonymous-sessions", d.Sessions.Complete)
		auth.PUT("/anonymous-sessions/upload-mediafile/:sessionId", d.Sessions.UpdatePhoto)
		auth.POST("/media/upload", d.Media.Upload)
	}

	return r
}
