package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"DoorbellCall/apps/devbackend/server"
	"DoorbellCall/config"
	"DoorbellCall/pkg/ctxmeta"
	"DoorbellCall/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	ctx := ctxmeta.WithTraceID(context.Background(), "0")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	l, err := logger.Build(cfg.Logger)
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	logger.ReplaceGlobal(l)
	defer func() {
		_ = l.Sync()
	}()

	// 3. 组装服务
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, err := server.Build(cfg.DevBackend, cfg.Call, reg)
	if err != nil {
		logger.Fatal(ctx, "开发后端初始化失败", logger.ErrorField("error", err))
	}

	// 4. 后台启动监听
	go func() {
		logger.Info(ctx, "开发后端启动中",
			logger.String("addr", cfg.DevBackend.Addr),
			logger.Int("doorbell_count", len(cfg.DevBackend.Doorbells)),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "开发后端启动失败", logger.ErrorField("error", err))
		}
	}()

	// 5. 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 6. 优雅停机
	logger.Info(ctx, "开发后端开始优雅停机")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DevBackend.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "开发后端优雅停机失败", logger.ErrorField("error", err))
		return
	}
	logger.Info(ctx, "开发后端已退出")
}
