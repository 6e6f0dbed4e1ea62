package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"DoorbellCall/apps/caller/internal/backend"
	"DoorbellCall/apps/caller/internal/call"
	"DoorbellCall/apps/caller/internal/media"
	"DoorbellCall/apps/caller/internal/session"
	"DoorbellCall/apps/caller/internal/store"
	"DoorbellCall/config"
	"DoorbellCall/consts"
	"DoorbellCall/model"
	"DoorbellCall/pkg/calltoken"
	"DoorbellCall/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var initLoggerOnce sync.Once

func initTestLogger() {
	initLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

type fakeAPI struct {
	startFn    func(mac string) (*backend.SessionGrant, error)
	completeFn func(mac, imgURL, sessionID string) (*backend.SessionGrant, error)
	updateFn   func(sessionID, imgURL string) error
	doorbellFn func(code string) (*model.Doorbell, error)

	tokenSource    func() string
	onUnauthorized func(ctx context.Context)
}

func (f *fakeAPI) StartSession(ctx context.Context, mac string) (*backend.SessionGrant, error) {
	return f.startFn(mac)
}

func (f *fakeAPI) CompleteSession(ctx context.Context, mac, imgURL, sessionID string) (*backend.SessionGrant, error) {
	if f.completeFn == nil {
		return &backend.SessionGrant{}, nil
	}
	return f.completeFn(mac, imgURL, sessionID)
}

func (f *fakeAPI) UpdateSessionPhoto(ctx context.Context, sessionID, imgURL string) error {
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(sessionID, imgURL)
}

func (f *fakeAPI) GetDoorbell(ctx context.Context, code string) (*model.Doorbell, error) {
	return f.doorbellFn(code)
}

func (f *fakeAPI) SetTokenSource(fn func() string)              { f.tokenSource = fn }
func (f *fakeAPI) OnUnauthorized(fn func(ctx context.Context)) { f.onUnauthorized = fn }

type fakeUploader struct{}

func (fakeUploader) Upload(ctx context.Context, photo media.Photo) (*media.Uploaded, error) {
	return &media.Uploaded{URL: "https://media.example.com/" + photo.FileName, FileID: "f-1"}, nil
}

type fakeSignaling struct {
	mu        sync.Mutex
	connected bool
	user      model.CallUser
	token     string
	calls     []string
	connects  int

	connectFn     func(n int) error
	getOrCreateFn func() error
	joinFn        func(attempt int) error
	joins         int
}

func (f *fakeSignaling) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeSignaling) Connect(ctx context.Context, user model.CallUser, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectFn != nil {
		if err := f.connectFn(f.connects); err != nil {
			return err
		}
	}
	f.connected = true
	f.user = user
	f.token = token
	return nil
}

func (f *fakeSignaling) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeSignaling) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSignaling) GetOrCreate(ctx context.Context, ref model.CallRef, req call.CreateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_or_create")
	if f.getOrCreateFn != nil {
		return f.getOrCreateFn()
	}
	return nil
}

func (f *fakeSignaling) UpdateMembers(ctx context.Context, ref model.CallRef, members []model.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update_members")
	return nil
}

func (f *fakeSignaling) QueryMembers(ctx context.Context, ref model.CallRef) ([]model.MemberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("query_members")
	return []model.MemberRecord{{User: &model.MemberUser{ID: f.user.ID}}}, nil
}

func (f *fakeSignaling) Join(ctx context.Context, ref model.CallRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("join")
	f.joins++
	if f.joinFn != nil {
		return f.joinFn(f.joins)
	}
	return nil
}

func (f *fakeSignaling) Leave(ctx context.Context, ref model.CallRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("leave")
	return nil
}

func (f *fakeSignaling) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type appHarness struct {
	app       *App
	api       *fakeAPI
	signaling *fakeSignaling
	store     *store.MemoryStore
	cfg       config.AppConfig
}

func newAppHarness(t *testing.T) *appHarness {
	t.Helper()
	initTestLogger()
	h := &appHarness{
		api: &fakeAPI{
			startFn: func(mac string) (*backend.SessionGrant, error) {
				return &backend.SessionGrant{SessionID: "3f2a9c1e-7b44-4d21-9a0b-5c6d7e8f9a01", Token: "tok-1", ExpiresIn: time.Hour}, nil
			},
			doorbellFn: func(code string) (*model.Doorbell, error) {
				return &model.Doorbell{Code: code, MemberStreamIDs: []string{"resident-a", "resident-b", "resident-a"}}, nil
			},
		},
		signaling: &fakeSignaling{},
		store:     store.NewMemoryStore(),
		cfg:       config.Default(),
	}
	h.app = New(h.cfg, Deps{
		API:       h.api,
		Uploader:  fakeUploader{},
		Store:     h.store,
		Signaling: h.signaling,
	})
	return h
}

// ready 创建会话并完成资料登记
func (h *appHarness) ready(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.app.Start(ctx))
	assert.Equal(t, RouteEntry, h.app.Route())
	require.NoError(t, h.app.CompleteProfile(ctx, []byte("jpeg")))
	assert.Equal(t, RouteLobby, h.app.Route())
}

func TestResolve(t *testing.T) {
	authed := session.Snapshot{Authenticated: true, Session: model.AnonymousSession{ProfileComplete: true}}
	incomplete := session.Snapshot{Authenticated: true}

	assert.Equal(t, RouteLobby, Resolve(authed, RouteLobby))
	assert.Equal(t, RouteCall, Resolve(authed, RouteCall))
	assert.Equal(t, RouteEntry, Resolve(incomplete, RouteLobby))
	assert.Equal(t, RouteEntry, Resolve(session.Snapshot{}, RouteCall))
	assert.Equal(t, RouteEntry, Resolve(authed, RouteEntry))
}

func TestApp_EndToEnd(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newAppHarness(t)
		h.ready(t)
		ctx := context.Background()
		h.app.SetUserName(ctx, "Visitor")

		handle, err := h.app.EnterLobby(ctx, "FRONT")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(handle.Ref().ID, "FRONT"))
		assert.Equal(t, model.CallingStateIdle, handle.State())

		// 信令以派生身份连接，凭证可被校验
		assert.Equal(t, "anon-3f2a9c1e7b44", h.signaling.user.ID)
		assert.Equal(t, "Visitor", h.signaling.user.Name)
		claims, err := calltoken.Parse(h.signaling.token, h.cfg.Call.APISecret)
		require.NoError(t, err)
		assert.Equal(t, "anon-3f2a9c1e7b44", claims.UserID)

		res, err := h.app.Join(ctx)
		require.NoError(t, err)
		assert.Equal(t, handle.Ref().ID, res.CallID)
		assert.Equal(t, []model.Member{
			{UserID: "anon-3f2a9c1e7b44", Role: model.RoleAdmin},
			{UserID: "resident-a"},
			{UserID: "resident-b"},
		}, res.Members)
		assert.Equal(t, call.JoinPathDirect, res.JoinPath)
		assert.Equal(t, RouteCall, h.app.Route())
		assert.Equal(t, 1, h.signaling.connects)

		out := h.app.End(ctx)
		assert.True(t, out.Left)
		assert.NotEmpty(t, out.NextCallID)
		assert.NotEqual(t, res.CallID, out.NextCallID)
		assert.Equal(t, RouteLobby, h.app.Route())
		assert.Equal(t, []string{"get_or_create", "update_members", "query_members", "join", "leave"}, h.signaling.Calls())
	})

	t.Run("connectivity_failure", func(t *testing.T) {
		h := newAppHarness(t)
		h.ready(t)
		h.signaling.getOrCreateFn = func() error { return errors.New("unreachable") }
		ctx := context.Background()

		_, err := h.app.EnterLobby(ctx, "FRONT")
		require.NoError(t, err)
		_, err = h.app.Join(ctx)
		require.ErrorIs(t, err, call.ErrConnectivity)
		assert.NotContains(t, h.signaling.Calls(), "join")
		assert.Equal(t, model.CallingStateIdle, h.app.Calls().Handle().State())
		assert.Equal(t, RouteLobby, h.app.Route())
	})

	t.Run("join_fallback", func(t *testing.T) {
		h := newAppHarness(t)
		h.ready(t)
		h.signaling.joinFn = func(attempt int) error {
			if attempt == 1 {
				return errors.New("transient")
			}
			return nil
		}
		ctx := context.Background()

		res, err := h.app.Join(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, RouteCall, h.app.Route())
	})

	t.Run("connect_failure_retries_next_time", func(t *testing.T) {
		h := newAppHarness(t)
		h.ready(t)
		h.signaling.connectFn = func(n int) error {
			if n == 1 {
				return errors.New("dial refused")
			}
			return nil
		}
		ctx := context.Background()

		_, err := h.app.Join(ctx)
		require.ErrorIs(t, err, call.ErrConnectivity)
		assert.Empty(t, h.signaling.Calls())

		_, err = h.app.Join(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, h.signaling.connects)
	})
}

func TestApp_Guard(t *testing.T) {
	h := newAppHarness(t)
	ctx := context.Background()
	require.NoError(t, h.app.Start(ctx))

	_, err := h.app.EnterLobby(ctx, "FRONT")
	require.ErrorIs(t, err, ErrNotReady)
	_, err = h.app.Join(ctx)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, RouteEntry, h.app.Route())
	assert.Zero(t, h.signaling.connects)
}

func TestApp_Unauthorized(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)
	ctx := context.Background()
	_, err := h.app.Join(ctx)
	require.NoError(t, err)
	require.NotNil(t, h.api.tokenSource)
	assert.Equal(t, "tok-1", h.api.tokenSource())

	// 后端客户端收到 401
	h.api.onUnauthorized(ctx)

	assert.Equal(t, RouteEntry, h.app.Route())
	assert.False(t, h.signaling.Connected())
	assert.Nil(t, h.app.Calls().Handle())
	assert.Contains(t, h.signaling.Calls(), "leave")
	assert.Empty(t, h.api.tokenSource())

	persisted, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted.Session)
	assert.NotEmpty(t, persisted.DeviceMAC)
}

func TestApp_Cancel(t *testing.T) {
	h := newAppHarness(t)
	h.ready(t)
	ctx := context.Background()
	_, err := h.app.EnterLobby(ctx, "FRONT")
	require.NoError(t, err)

	h.app.Cancel(ctx)
	assert.Equal(t, RouteEntry, h.app.Route())
	assert.False(t, h.app.Sessions().Snapshot().Authenticated)
	assert.False(t, h.signaling.Connected())
	assert.Equal(t, []string{"leave"}, h.signaling.Calls())

	// 重复取消不再发送 leave
	h.app.Cancel(ctx)
	assert.Equal(t, []string{"leave"}, h.signaling.Calls())
}

func TestApp_HandleFollowsSession(t *testing.T) {
	h := newAppHarness(t)
	ctx := context.Background()
	assert.Nil(t, h.app.Calls().Handle())

	require.NoError(t, h.app.Start(ctx))
	handle := h.app.Calls().Handle()
	require.NotNil(t, handle)
	assert.Equal(t, model.CallingStateIdle, handle.State())

	h.app.Sessions().Logout(ctx, session.ReasonUser)
	assert.Nil(t, h.app.Calls().Handle())

	// 重新创建会话后句柄随之重建
	require.NoError(t, h.app.Start(ctx))
	next := h.app.Calls().Handle()
	require.NotNil(t, next)
	assert.NotSame(t, handle, next)
}

func TestApp_RestoreGoesToLobby(t *testing.T) {
	initTestLogger()
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, model.PersistedState{
		DeviceMAC: "AA:BB:CC:DD:EE:FF",
		Session: &model.AnonymousSession{
			Token:           "tok-restored",
			SessionID:       "restored-session-0001",
			ExpiresAt:       time.Now().Add(time.Hour),
			ProfileComplete: true,
		},
	}))
	api := &fakeAPI{startFn: func(string) (*backend.SessionGrant, error) {
		t.Fatal("restored session must not start a new one")
		return nil, nil
	}}
	a := New(config.Default(), Deps{API: api, Uploader: fakeUploader{}, Store: st, Signaling: &fakeSignaling{}})

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, RouteLobby, a.Route())
	assert.Equal(t, "anon-restoredsess", a.Sessions().Snapshot().CallUserID)
}

func TestCodeOf(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int32
	}{
		"nil":          {nil, consts.CodeSuccess},
		"not_ready":    {ErrNotReady, consts.CodeNoActiveSession},
		"upload":       {fmt.Errorf("%w: boom", session.ErrUploadFailed), consts.CodeUploadFailed},
		"connectivity": {fmt.Errorf("%w: %w", call.ErrConnectivity, errors.New("dial")), consts.CodeCallConnectivity},
		"join":         {call.ErrJoinFailed, consts.CodeJoinFailed},
		"unknown":      {errors.New("weird"), consts.CodeInternalError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, CodeOf(tc.err))
		})
	}
}
