// Package app 组装会话管理与通话准入，维护客户端路由。
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"DoorbellCall/apps/caller/internal/call"
	"DoorbellCall/apps/caller/internal/media"
	"DoorbellCall/apps/caller/internal/session"
	"DoorbellCall/apps/caller/internal/store"
	"DoorbellCall/config"
	"DoorbellCall/model"
	"DoorbellCall/pkg/callproto"
	"DoorbellCall/pkg/calltoken"
	"DoorbellCall/pkg/ctxmeta"
	"DoorbellCall/pkg/logger"
)

// ErrNotReady 会话未认证或资料未完成，不能进入大厅或通话
var ErrNotReady = errors.New("session not ready for call")

// API 会话与门铃后端（backend.Client 实现）
type API interface {
	session.API
	call.DoorbellResolver
	SetTokenSource(fn func() string)
	OnUnauthorized(fn func(ctx context.Context))
}

// Signaling 通话信令连接（transport.Client 实现）
type Signaling interface {
	call.Backend
	Connect(ctx context.Context, user model.CallUser, token string) error
	Disconnect()
	Connected() bool
}

// Deps App 的外部依赖
type Deps struct {
	API       API
	Uploader  media.Uploader
	Store     store.SessionStore
	Signaling Signaling

	// Dispatch 会话事件回调的执行方式，为空时同步执行
	Dispatch func(task func())
	Now      func() time.Time

	SessionOptions []session.Option
	CallOptions    []call.Option
}

// App 呼叫端
type App struct {
	cfg       config.AppConfig
	sessions  *session.Manager
	calls     *call.Controller
	signaling Signaling
	now       func() time.Time

	unsubscribe func()

	// connectMu 串行化信令连接；connectedAs 为空表示需要重新连接
	connectMu   sync.Mutex
	connectedAs string

	mu    sync.Mutex
	route Route
}

func New(cfg config.AppConfig, deps Deps) *App {
	a := &App{
		cfg:       cfg,
		signaling: deps.Signaling,
		now:       deps.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}

	opts := append([]session.Option(nil), deps.SessionOptions...)
	if deps.Dispatch != nil {
		opts = append(opts, session.WithDispatcher(deps.Dispatch))
	}
	a.sessions = session.NewManager(deps.API, deps.Uploader, deps.Store, cfg.Session, opts...)
	a.calls = call.NewController(deps.Signaling, deps.API, a.callIdentity, cfg.Call, deps.CallOptions...)

	deps.API.SetTokenSource(a.sessions.Token)
	deps.API.OnUnauthorized(a.sessions.HandleUnauthorized)
	a.unsubscribe = a.sessions.Subscribe(a.onSessionEvent)
	return a
}

// Sessions 会话管理器
func (a *App) Sessions() *session.Manager { return a.sessions }

// Calls 通话控制器
func (a *App) Calls() *call.Controller { return a.calls }

// Route 当前路由
func (a *App) Route() Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

func (a *App) setRoute(ctx context.Context, r Route) {
	a.mu.Lock()
	prev := a.route
	a.route = r
	a.mu.Unlock()
	if prev != r {
		logger.Info(ctx, "路由切换", logger.String("from", prev.String()), logger.String("to", r.String()))
	}
}

func (a *App) callIdentity() call.Identity {
	snap := a.sessions.Snapshot()
	return call.Identity{
		UserID:        snap.CallUserID,
		UserName:      snap.Session.UserName,
		Authenticated: snap.Authenticated,
	}
}

// Start 恢复或创建会话，资料已完成时直接进入大厅
func (a *App) Start(ctx context.Context) error {
	err := a.sessions.Load(ctx)
	a.setRoute(ctx, Resolve(a.sessions.Snapshot(), RouteLobby))
	return err
}

// SetUserName 设置访客名称
func (a *App) SetUserName(ctx context.Context, name string) {
	a.sessions.SetUserName(ctx, name)
}

// CompleteProfile 上传照片并登记，成功后进入大厅
func (a *App) CompleteProfile(ctx context.Context, photo []byte) error {
	if err := a.sessions.CompleteProfile(ctx, photo); err != nil {
		return err
	}
	a.setRoute(ctx, Resolve(a.sessions.Snapshot(), RouteLobby))
	return nil
}

// EnterLobby 连接信令服务并为 ringCode 准备空闲的通话句柄
func (a *App) EnterLobby(ctx context.Context, ringCode string) (*call.Handle, error) {
	snap := a.sessions.Snapshot()
	if Resolve(snap, RouteLobby) != RouteLobby {
		a.setRoute(ctx, RouteEntry)
		return nil, ErrNotReady
	}
	if err := a.ensureConnected(ctx, snap); err != nil {
		return nil, err
	}
	a.calls.SetRingCode(ringCode)
	h, err := a.calls.EnsureHandle()
	if err != nil {
		return nil, err
	}
	a.setRoute(ctx, RouteLobby)
	return h, nil
}

// Join 发起呼叫并加入通话
func (a *App) Join(ctx context.Context) (*call.JoinResult, error) {
	snap := a.sessions.Snapshot()
	if Resolve(snap, RouteCall) != RouteCall {
		a.setRoute(ctx, RouteEntry)
		return nil, ErrNotReady
	}
	ctx = ctxmeta.WithSessionID(ctx, snap.Session.SessionID)
	if err := a.ensureConnected(ctx, snap); err != nil {
		return nil, err
	}

	res, err := a.calls.Join(ctx)
	if err != nil {
		return res, err
	}
	if !res.Skipped {
		a.setRoute(ctx, RouteCall)
	}
	return res, nil
}

// End 结束通话，会话仍有效时回到大厅
func (a *App) End(ctx context.Context) call.EndResult {
	out := a.calls.End(ctx)
	if out.NextCallID != "" {
		a.setRoute(ctx, Resolve(a.sessions.Snapshot(), RouteLobby))
	} else {
		a.setRoute(ctx, RouteEntry)
	}
	return out
}

// Cancel 大厅取消：离开通话（忽略错误）后登出，回到入口
func (a *App) Cancel(ctx context.Context) {
	a.calls.Discard(ctx)
	a.sessions.Logout(ctx, session.ReasonUser)
	a.setRoute(ctx, RouteEntry)
}

// Close 进程退出前离开通话并断开信令
func (a *App) Close(ctx context.Context) {
	a.calls.Discard(ctx)
	a.disconnect()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

// ensureConnected 以派生身份连接信令服务；失败后下次调用重新尝试
func (a *App) ensureConnected(ctx context.Context, snap session.Snapshot) error {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()

	if a.connectedAs == snap.CallUserID && a.signaling.Connected() {
		return nil
	}
	a.connectedAs = ""

	token, err := calltoken.Mint(a.cfg.Call.APIKey, a.cfg.Call.APISecret, snap.CallUserID, a.cfg.Call.TokenTTL, a.now())
	if err != nil {
		return fmt.Errorf("mint call token: %w", err)
	}
	user := model.CallUser{ID: snap.CallUserID, Name: snap.Session.UserName}
	if err := a.signaling.Connect(ctx, user, token); err != nil {
		return fmt.Errorf("%w: %w", call.ErrConnectivity, err)
	}
	a.connectedAs = snap.CallUserID
	return nil
}

func (a *App) disconnect() {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()
	a.connectedAs = ""
	a.signaling.Disconnect()
}

// onSessionEvent 会话可用时准备通话句柄；登出（包括过期和 401）时结束通话、断开信令并回到入口
func (a *App) onSessionEvent(ev session.Event) {
	ctx := context.Background()
	switch ev.Type {
	case session.EventLoggedOut:
		out := a.calls.End(ctx)
		a.disconnect()
		a.setRoute(ctx, RouteEntry)
		logger.Info(ctx, "会话结束，回到入口",
			logger.String("reason", string(ev.Reason)),
			logger.Bool("left_call", out.Left),
		)
	case session.EventAuthenticated:
		ctx = ctxmeta.WithSessionID(ctx, ev.Snapshot.Session.SessionID)
		if _, err := a.calls.EnsureHandle(); err != nil {
			// 事件异步派发时会话可能已经结束
			logger.Debug(ctx, "会话已失效，跳过通话句柄准备", logger.ErrorField("error", err))
			return
		}
		logger.Debug(ctx, "会话可用",
			logger.String("call_user_id", ev.Snapshot.CallUserID),
		)
	}
}

// OnSignal 信令推送事件，仅记录
func (a *App) OnSignal(ctx context.Context, env *callproto.Envelope) {
	var ev callproto.CallEvent
	if err := env.Decode(&ev); err != nil {
		logger.Warn(ctx, "信令事件解析失败", logger.String("type", env.Type), logger.ErrorField("error", err))
		return
	}
	ctx = ctxmeta.WithCallID(ctx, ev.Call.ID)
	switch env.Type {
	case callproto.EventMemberJoin:
		logger.Info(ctx, "成员加入通话", logger.String("user_id", ev.UserID))
	case callproto.EventMemberLeft:
		logger.Info(ctx, "成员离开通话", logger.String("user_id", ev.UserID))
	default:
		logger.Debug(ctx, "收到信令事件", logger.String("type", env.Type))
	}
}
