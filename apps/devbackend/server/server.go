// Package server 本地开发后端：匿名会话 REST 接口、媒体上传、门铃查询与通话信令，全部在内存中。
package server

import (
	"context"
	"net/http"
	"time"

	"DoorbellCall/apps/devbackend/internal/coordinator"
	"DoorbellCall/apps/devbackend/internal/handler"
	"DoorbellCall/apps/devbackend/internal/middleware"
	"DoorbellCall/apps/devbackend/internal/router"
	"DoorbellCall/apps/devbackend/internal/service"
	"DoorbellCall/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Server 对 http.Server 的轻量封装，集中管理启动和优雅关闭
type Server struct {
	httpServer *http.Server
	conns      *coordinator.ConnectionManager
	sessions   *service.SessionService
	doorbells  *service.DoorbellService
}

// Build 组装全部依赖。reg 为 nil 时使用独立的 Registry，避免重复注册。
func Build(cfg config.DevBackendConfig, callCfg config.CallConfig, reg *prometheus.Registry) (*Server, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	// 1. 业务服务
	sessions := service.NewSessionService(cfg)
	media, err := service.NewMediaService(cfg)
	if err != nil {
		return nil, err
	}
	doorbells := service.NewDoorbellService(cfg.Doorbells)

	// 2. 中间件依赖
	limiter, err := middleware.NewIPRateLimiter(cfg.StartRatePerSec, cfg.StartBurst, cfg.LimiterCacheSize)
	if err != nil {
		return nil, err
	}
	middleware.LogLimiterInit(context.Background(), cfg.StartRatePerSec, cfg.StartBurst)

	// 3. 信令
	conns := coordinator.NewConnectionManager()
	ws := coordinator.NewWSHandler(callCfg, conns, coordinator.NewRegistry(cfg.AllowGuestJoin), coordinator.NewMetrics(reg))

	// 4. 路由
	engine := router.InitRouter(router.Deps{
		Sessions:     handler.NewSessionHandler(sessions),
		Media:        handler.NewMediaHandler(media, cfg.MaxUploadSize),
		Doorbells:    handler.NewDoorbellHandler(doorbells),
		WS:           ws,
		Auth:         sessions,
		StartLimiter: limiter,
		Metrics:      middleware.NewHTTPMetrics(reg),
		Gatherer:     reg,
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		conns:     conns,
		sessions:  sessions,
		doorbells: doorbells,
	}, nil
}

// Handler 路由入口，测试中交给 httptest 使用
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// RevokeSession 作废会话，之后该会话的请求返回 401
func (s *Server) RevokeSession(ctx context.Context, sessionID string) bool {
	return s.sessions.Revoke(ctx, sessionID)
}

// PutDoorbell 新增或替换门铃
func (s *Server) PutDoorbell(code string, members []string) {
	s.doorbells.Put(code, members)
}

// Start 启动监听；优雅关闭时返回 http.ErrServerClosed
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown 先断开所有信令连接，再关闭 HTTP 服务
func (s *Server) Shutdown(ctx context.Context) error {
	s.conns.Shutdown()
	return s.httpServer.Shutdown(ctx)
}
