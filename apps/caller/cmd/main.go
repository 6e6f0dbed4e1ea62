package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DoorbellCall/apps/caller/internal/app"
	"DoorbellCall/apps/caller/internal/backend"
	"DoorbellCall/apps/caller/internal/call"
	"DoorbellCall/apps/caller/internal/media"
	"DoorbellCall/apps/caller/internal/store"
	"DoorbellCall/apps/caller/internal/transport"
	"DoorbellCall/config"
	"DoorbellCall/pkg/async"
	"DoorbellCall/pkg/callproto"
	"DoorbellCall/pkg/ctxmeta"
	"DoorbellCall/pkg/logger"
	pkgminio "DoorbellCall/pkg/minio"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	photoPath := flag.String("photo", "", "访客照片（jpeg/png）")
	ringCode := flag.String("ring", "", "门铃 ring code")
	entryURL := flag.String("entry", "", "入口 URL（从 ?ring= 取 ring code）")
	userName := flag.String("name", "", "访客名称")
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

	// 3. 初始化协程池（会话事件回调在池中执行）
	async.SetContextPropagator(ctxmeta.Propagate)
	if err := async.Init(cfg.Async); err != nil {
		logger.Fatal(ctx, "初始化协程池失败", logger.ErrorField("error", err))
	}
	defer func() {
		_ = async.Release()
	}()

	// 4. 会话持久化
	st, err := store.Open(cfg.Session.Store)
	if err != nil {
		logger.Fatal(ctx, "初始化会话存储失败",
			logger.String("driver", cfg.Session.Store.Driver),
			logger.ErrorField("error", err),
		)
	}

	// 5. 后端客户端与照片上传方式
	api := backend.New(cfg.Backend, backend.WithMetrics(backend.NewMetrics(prometheus.DefaultRegisterer)))
	var uploader media.Uploader = media.NewHTTPUploader(api)
	if cfg.Media.Driver == config.MediaDriverMinIO {
		mc, err := pkgminio.Build(ctx, cfg.Media.MinIO)
		if err != nil {
			logger.Fatal(ctx, "初始化 MinIO 失败", logger.ErrorField("error", err))
		}
		uploader = media.NewMinIOUploader(mc)
		logger.Info(ctx, "照片直传对象存储", logger.String("bucket", cfg.Media.MinIO.BucketName))
	}

	// 6. 信令客户端与 App
	var a *app.App
	signaling := transport.New(cfg.Call, transport.WithEventHandler(func(ctx context.Context, env *callproto.Envelope) {
		a.OnSignal(ctx, env)
	}))
	a = app.New(cfg, app.Deps{
		API:       api,
		Uploader:  uploader,
		Store:     st,
		Signaling: signaling,
		Dispatch: func(task func()) {
			async.RunSafe(ctx, func(context.Context) { task() }, 0)
		},
	})

	// 7. 恢复或创建会话
	if err := a.Start(ctx); err != nil {
		logger.Fatal(ctx, "会话初始化失败", logger.Int("code", int(app.CodeOf(err))), logger.ErrorField("error", err))
	}
	if *userName != "" {
		a.SetUserName(ctx, *userName)
	}

	// 8. 资料未完成时上传照片登记
	if a.Route() == app.RouteEntry {
		if *photoPath == "" {
			logger.Fatal(ctx, "会话资料未完成，需要 -photo 指定照片")
		}
		photo, err := os.ReadFile(*photoPath)
		if err != nil {
			logger.Fatal(ctx, "读取照片失败", logger.ErrorField("error", err))
		}
		if err := a.CompleteProfile(ctx, photo); err != nil {
			logger.Fatal(ctx, "资料登记失败", logger.Int("code", int(app.CodeOf(err))), logger.ErrorField("error", err))
		}
	}

	// 9. 进入大厅并呼叫
	code := *ringCode
	if code == "" {
		code = call.ParseRingCode(*entryURL)
	}
	handle, err := a.EnterLobby(ctx, code)
	if err != nil {
		logger.Fatal(ctx, "进入大厅失败", logger.Int("code", int(app.CodeOf(err))), logger.ErrorField("error", err))
	}
	logger.Info(ctx, "准备呼叫",
		logger.String("ring_code", code),
		logger.String("call_id", handle.Ref().ID),
	)
	res, err := a.Join(ctx)
	if err != nil {
		a.Close(ctx)
		logger.Fatal(ctx, "呼叫失败", logger.Int("code", int(app.CodeOf(err))), logger.ErrorField("error", err))
	}
	for _, w := range res.Warnings {
		logger.Warn(ctx, "呼叫过程中的非致命错误", logger.Int("code", int(app.CodeOf(w))), logger.ErrorField("error", w))
	}

	// 10. 等待退出信号后挂断
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "挂断通话")
	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := a.End(endCtx)
	a.Close(endCtx)
	logger.Info(ctx, "已退出", logger.Bool("left", out.Left))
}
