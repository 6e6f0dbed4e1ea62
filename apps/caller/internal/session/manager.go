package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DoorbellCall/apps/caller/internal/backend"
	"DoorbellCall/apps/caller/internal/identity"
	"DoorbellCall/apps/caller/internal/media"
	"DoorbellCall/apps/caller/internal/store"
	"DoorbellCall/config"
	"DoorbellCall/model"
	"DoorbellCall/pkg/ctxmeta"
	"DoorbellCall/pkg/logger"
)

// API 会话后端
type API interface {
	StartSession(ctx context.Context, mac string) (*backend.SessionGrant, error)
	CompleteSession(ctx context.Context, mac, imgURL, sessionID string) (*backend.SessionGrant, error)
	UpdateSessionPhoto(ctx context.Context, sessionID, imgURL string) error
}

// Manager 匿名会话状态机。
// 所有状态读写都在 mu 下完成；网络请求期间不持锁，返回后用 generation 判断结果是否仍然有效。
type Manager struct {
	api      API
	uploader media.Uploader
	store    store.SessionStore
	cfg      config.SessionConfig
	clock    Clock
	dispatch func(task func())

	// profileMu 串行化照片登记，第二次调用会看到第一次的结果
	profileMu sync.Mutex

	mu         sync.Mutex
	state      State
	sess       model.AnonymousSession
	mac        string
	generation uint64
	timer      Timer
	timerSeq   uint64
	listeners  map[int]func(Event)
	nextID     int
}

// Option Manager 可选项
type Option func(*Manager)

// WithClock 替换时钟
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithDispatcher 事件回调的执行方式，默认在触发状态变化的 goroutine 中同步执行
func WithDispatcher(fn func(task func())) Option {
	return func(m *Manager) { m.dispatch = fn }
}

func NewManager(api API, uploader media.Uploader, st store.SessionStore, cfg config.SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		api:       api,
		uploader:  uploader,
		store:     st,
		cfg:       cfg,
		clock:     realClock{},
		dispatch:  func(task func()) { task() },
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.DefaultExpiresIn <= 0 {
		m.cfg.DefaultExpiresIn = time.Hour
	}
	if m.cfg.PhotoFileName == "" {
		m.cfg.PhotoFileName = "photo.jpg"
	}
	return m
}

// Subscribe 订阅状态变化，返回取消函数
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Load 读取持久化状态：有凭证则恢复，否则创建新会话。
// 恢复的会话已过期时立即登出，再创建新会话。
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	persisted, err := m.store.Load(ctx)
	if err != nil {
		// 存储损坏不阻塞启动，按空状态处理
		logger.Warn(ctx, "读取持久化会话失败，按空状态处理", logger.ErrorField("error", err))
		persisted = model.PersistedState{}
	}

	restore := persisted.Session != nil && persisted.Session.HasCredentials() && m.state != StateAuthenticated
	if restore {
		m.sess = *persisted.Session
	}
	if persisted.UserName != "" {
		m.sess.UserName = persisted.UserName
	}
	if err := m.ensureDeviceLocked(ctx, persisted.DeviceMAC); err != nil {
		m.mu.Unlock()
		return err
	}

	if !restore {
		m.mu.Unlock()
		return m.Start(ctx)
	}

	m.state = StateAuthenticated
	m.generation++
	logger.Info(ctxmeta.WithSessionID(ctx, m.sess.SessionID), "恢复持久化会话",
		logger.Bool("profile_complete", m.sess.ProfileComplete),
		logger.Time("expires_at", m.sess.ExpiresAt),
	)

	armEvents := m.armExpiryLocked(ctx)
	var events []Event
	if m.state == StateAuthenticated {
		events = append(events, m.eventLocked(EventAuthenticated, ""))
	}
	events = append(events, armEvents...)
	expired := m.state == StateExpired
	m.mu.Unlock()
	m.emit(events)

	if expired {
		return m.Start(ctx)
	}
	return nil
}

// ensureDeviceLocked 设备 MAC 只生成一次，优先使用已持久化的 known
func (m *Manager) ensureDeviceLocked(ctx context.Context, known string) error {
	if m.mac != "" {
		return nil
	}
	if identity.ValidMAC(known) {
		m.mac = known
		return nil
	}
	mac, err := identity.GenerateMAC()
	if err != nil {
		return err
	}
	m.mac = mac
	logger.Info(ctx, "生成设备 MAC", logger.String("mac", mac))
	m.persistLocked(ctx)
	return nil
}

// Start 创建匿名会话。请求在途或已成功时为空操作。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateAuthenticating || m.state == StateAuthenticated {
		m.mu.Unlock()
		return nil
	}
	var known string
	if m.mac == "" {
		// 未经 Load 直接创建会话时才需要读取存储
		if persisted, err := m.store.Load(ctx); err == nil {
			known = persisted.DeviceMAC
		}
	}
	if err := m.ensureDeviceLocked(ctx, known); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSessionStartFailed, err)
	}
	m.state = StateAuthenticating
	gen := m.generation
	mac := m.mac
	m.mu.Unlock()

	grant, err := m.api.StartSession(ctx, mac)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		logger.Warn(ctx, "会话创建结果已过期，丢弃")
		return ErrSuperseded
	}
	if err != nil {
		m.state = StateUninitialized
		m.mu.Unlock()
		logger.Error(ctx, "创建匿名会话失败", logger.ErrorField("error", err))
		return fmt.Errorf("%w: %w", ErrSessionStartFailed, err)
	}

	expiresIn := grant.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = m.cfg.DefaultExpiresIn
	}
	m.sess = model.AnonymousSession{
		Token:           grant.Token,
		SessionID:       grant.SessionID,
		UserName:        m.sess.UserName,
		ExpiresAt:       m.clock.Now().Add(expiresIn),
		ProfileComplete: false,
	}
	m.state = StateAuthenticated
	m.generation++
	m.persistLocked(ctx)

	logger.Info(ctxmeta.WithSessionID(ctx, grant.SessionID), "匿名会话已创建",
		logger.Duration("expires_in", expiresIn),
	)
	events := []Event{m.eventLocked(EventAuthenticated, "")}
	events = append(events, m.armExpiryLocked(ctx)...)
	m.mu.Unlock()
	m.emit(events)
	return nil
}

// CompleteProfile 上传照片并登记到会话。
// 首次走完整登记并置 profileComplete；之后只更新照片地址。
// 任何一步失败都原样返回，profileComplete 不变，token 不回滚。
func (m *Manager) CompleteProfile(ctx context.Context, data []byte) error {
	m.profileMu.Lock()
	defer m.profileMu.Unlock()

	m.mu.Lock()
	if m.sess.Token == "" || m.sess.SessionID == "" || m.mac == "" {
		m.mu.Unlock()
		return ErrProfilePreconditionUnmet
	}
	gen := m.generation
	sessionID := m.sess.SessionID
	mac := m.mac
	complete := m.sess.ProfileComplete
	m.mu.Unlock()

	ctx = ctxmeta.WithSessionID(ctx, sessionID)

	up, err := m.uploader.Upload(ctx, media.Photo{FileName: m.cfg.PhotoFileName, Data: data})
	if err != nil {
		logger.Error(ctx, "照片上传失败", logger.ErrorField("error", err))
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if up == nil || up.URL == "" {
		return fmt.Errorf("%w: no url returned", ErrUploadFailed)
	}

	if complete {
		if err := m.api.UpdateSessionPhoto(ctx, sessionID, up.URL); err != nil {
			logger.Error(ctx, "更新会话照片失败", logger.ErrorField("error", err))
			return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
		}
		logger.Info(ctx, "会话照片已更新", logger.String("img_url", up.URL))
		return nil
	}

	grant, err := m.api.CompleteSession(ctx, mac, up.URL, sessionID)
	if err != nil {
		logger.Error(ctx, "会话登记失败", logger.ErrorField("error", err))
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		logger.Warn(ctx, "会话登记返回时会话已失效，丢弃")
		return ErrSuperseded
	}
	m.sess.ProfileComplete = true
	if grant != nil {
		// 登记接口可能下发新的凭证
		if grant.Token != "" {
			m.sess.Token = grant.Token
		}
		if grant.SessionID != "" {
			m.sess.SessionID = grant.SessionID
		}
	}
	m.persistLocked(ctx)
	events := []Event{m.eventLocked(EventProfileCompleted, "")}
	m.mu.Unlock()

	logger.Info(ctx, "会话登记完成", logger.String("img_url", up.URL))
	m.emit(events)
	return nil
}

// SetUserName 设置访客名称，会话不存在时也会持久化，登出时清除
func (m *Manager) SetUserName(ctx context.Context, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess.UserName = name
	m.persistLocked(ctx)
}

// Logout 同步清空内存和持久化状态并取消过期定时器，可重复调用
func (m *Manager) Logout(ctx context.Context, reason LogoutReason) {
	m.mu.Lock()
	events := m.logoutLocked(ctx, reason)
	m.mu.Unlock()
	m.emit(events)
}

// HandleUnauthorized 任意鉴权请求返回 401 时调用
func (m *Manager) HandleUnauthorized(ctx context.Context) {
	m.Logout(ctx, ReasonUnauthorized)
}

func (m *Manager) logoutLocked(ctx context.Context, reason LogoutReason) []Event {
	active := m.sess.Token != "" || m.state == StateAuthenticating || m.state == StateAuthenticated

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
	m.generation++
	m.sess = model.AnonymousSession{}
	if reason == ReasonExpired {
		m.state = StateExpired
	} else {
		m.state = StateLoggedOut
	}
	if err := m.store.Clear(ctx); err != nil {
		logger.Error(ctx, "清除持久化会话失败", logger.ErrorField("error", err))
	}

	if !active {
		return nil
	}
	logger.Info(ctx, "会话已登出", logger.String("reason", string(reason)))
	return []Event{m.eventLocked(EventLoggedOut, reason)}
}

// armExpiryLocked 按当前 expiresAt 重新设置唯一的过期定时器；已过期则立即登出
func (m *Manager) armExpiryLocked(ctx context.Context) []Event {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
	if m.sess.ExpiresAt.IsZero() {
		return nil
	}

	delay := m.sess.ExpiresAt.Sub(m.clock.Now())
	if delay <= 0 {
		return m.logoutLocked(ctx, ReasonExpired)
	}
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(delay, func() { m.onExpiry(seq) })
	return nil
}

func (m *Manager) onExpiry(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq {
		// 定时器已被替换或取消
		m.mu.Unlock()
		return
	}
	m.timer = nil
	events := m.logoutLocked(context.Background(), ReasonExpired)
	m.mu.Unlock()
	m.emit(events)
}

func (m *Manager) persistLocked(ctx context.Context) {
	state := model.PersistedState{DeviceMAC: m.mac, UserName: m.sess.UserName}
	if m.sess.HasCredentials() {
		sess := m.sess
		state.Session = &sess
	}
	if err := m.store.Save(ctx, state); err != nil {
		logger.Error(ctx, "持久化会话失败", logger.ErrorField("error", err))
	}
}

// Snapshot 当前状态
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	authenticated := m.state == StateAuthenticated && m.sess.IsAuthenticated(m.clock.Now())
	snap := Snapshot{
		State:         m.state,
		Session:       m.sess,
		DeviceMAC:     m.mac,
		Authenticated: authenticated,
	}
	if authenticated {
		snap.CallUserID = identity.DeriveCallUserID(m.sess.SessionID)
	}
	return snap
}

// Token 当前 token，供后端客户端注入 Authorization
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.Token
}

func (m *Manager) eventLocked(t EventType, reason LogoutReason) Event {
	return Event{Type: t, Reason: reason, Snapshot: m.snapshotLocked()}
}

// emit 一批事件作为一个任务按顺序回调
func (m *Manager) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	m.mu.Lock()
	listeners := make([]func(Event), 0, len(m.listeners))
	for i := 0; i < m.nextID; i++ {
		if l, ok := m.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	if len(listeners) == 0 {
		return
	}
	m.dispatch(func() {
		for _, ev := range events {
			for _, l := range listeners {
				l(ev)
			}
		}
	})
}
