package call

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"

	"DoorbellCall/config"
	"DoorbellCall/model"
	"DoorbellCall/pkg/ctxmeta"
	"DoorbellCall/pkg/logger"
)

const (
	suffixMin = 1000000
	suffixMax = 9000000

	// maxJoinAttempts 首次加入 + 一次重试
	maxJoinAttempts = 2

	// CustomTypeAnonymousVideo 通话自定义数据中的类型
	CustomTypeAnonymousVideo = "anonymous_video"
)

// CreateRequest get-or-create 的参数
type CreateRequest struct {
	Members   []model.Member
	CreatedBy string
	Ring      bool
	Custom    map[string]string
}

// Backend 通话后端
type Backend interface {
	GetOrCreate(ctx context.Context, ref model.CallRef, req CreateRequest) error
	UpdateMembers(ctx context.Context, ref model.CallRef, members []model.Member) error
	QueryMembers(ctx context.Context, ref model.CallRef) ([]model.MemberRecord, error)
	Join(ctx context.Context, ref model.CallRef) error
	Leave(ctx context.Context, ref model.CallRef) error
}

// DoorbellResolver 按 ring code 查询门铃成员
type DoorbellResolver interface {
	GetDoorbell(ctx context.Context, code string) (*model.Doorbell, error)
}

// Identity 当前会话派生出的通话身份
type Identity struct {
	UserID        string
	UserName      string
	Authenticated bool
}

// Handle 本地通话句柄，状态用原子操作推进
type Handle struct {
	ref   model.CallRef
	state atomic.Int32
}

func (h *Handle) Ref() model.CallRef { return h.ref }

func (h *Handle) State() model.CallingState {
	return model.CallingState(h.state.Load())
}

func (h *Handle) transition(from, to model.CallingState) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}

func (h *Handle) set(s model.CallingState) model.CallingState {
	return model.CallingState(h.state.Swap(int32(s)))
}

// Controller 通话准入控制：创建通话、核对成员、加入和结束
type Controller struct {
	backend   Backend
	doorbells DoorbellResolver
	identity  func() Identity
	cfg       config.CallConfig
	suffix    func() int

	mu       sync.Mutex
	ringCode string
	handle   *Handle
}

// Option Controller 可选项
type Option func(*Controller)

// WithSuffix 替换通话 id 随机后缀的生成
func WithSuffix(fn func() int) Option {
	return func(c *Controller) { c.suffix = fn }
}

func NewController(b Backend, doorbells DoorbellResolver, identity func() Identity, cfg config.CallConfig, opts ...Option) *Controller {
	c := &Controller{
		backend:   b,
		doorbells: doorbells,
		identity:  identity,
		cfg:       cfg,
		suffix:    func() int { return suffixMin + rand.IntN(suffixMax-suffixMin+1) },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.JoinAttempts <= 0 || c.cfg.JoinAttempts > maxJoinAttempts {
		c.cfg.JoinAttempts = maxJoinAttempts
	}
	if c.cfg.CallType == "" {
		c.cfg.CallType = "default"
	}
	return c
}

// SetRingCode 设置目标门铃。ring code 变化且当前句柄仍空闲时丢弃句柄，下次按新目标生成。
func (c *Controller) SetRingCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if code == c.ringCode {
		return
	}
	c.ringCode = code
	if c.handle != nil && c.handle.State() == model.CallingStateIdle {
		c.handle = nil
	}
}

// Handle 当前句柄（可能为 nil）
func (c *Controller) Handle() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// EnsureHandle 会话可用且没有句柄时新建空闲句柄
func (c *Controller) EnsureHandle() (*Handle, error) {
	if !c.identity().Authenticated {
		return nil, ErrNoActiveSession
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		c.handle = c.newHandleLocked()
	}
	return c.handle, nil
}

// newHandleLocked 每次新建都生成新的随机后缀
func (c *Controller) newHandleLocked() *Handle {
	h := &Handle{ref: model.CallRef{
		Type: c.cfg.CallType,
		ID:   c.ringCode + strconv.Itoa(c.suffix()),
	}}
	h.state.Store(int32(model.CallingStateIdle))
	return h
}

// Join 执行加入流程。句柄不是空闲状态时为空操作（Skipped）。
func (c *Controller) Join(ctx context.Context) (*JoinResult, error) {
	id := c.identity()
	if !id.Authenticated || id.UserID == "" {
		return nil, ErrNoActiveSession
	}

	c.mu.Lock()
	if c.handle == nil {
		c.handle = c.newHandleLocked()
	}
	h := c.handle
	ringCode := c.ringCode
	c.mu.Unlock()

	res := &JoinResult{CallID: h.ref.ID}
	if !h.transition(model.CallingStateIdle, model.CallingStateJoining) {
		res.Skipped = true
		return res, nil
	}
	ctx = ctxmeta.WithCallID(ctx, h.ref.ID)

	// 1. 解析门铃成员（失败降级为只有本地成员）
	remote := c.resolveMembers(ctx, ringCode, res)

	// 2. 组装成员
	res.Members = ComposeMembers(id.UserID, remote)

	// 3. 获取或创建通话并振铃
	err := c.backend.GetOrCreate(ctx, h.ref, CreateRequest{
		Members:   res.Members,
		CreatedBy: id.UserID,
		Ring:      true,
		Custom: map[string]string{
			"type":        CustomTypeAnonymousVideo,
			"creatorName": id.UserName,
		},
	})
	if err != nil {
		h.transition(model.CallingStateJoining, model.CallingStateIdle)
		logger.Error(ctx, "创建通话失败，放弃加入", logger.ErrorField("error", err))
		return res, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	if c.abandoned(ctx, h) {
		return res, ErrCallEnded
	}

	// 4. 通话可能已存在，成员需要强制同步
	if len(res.Members) > 1 {
		if err := c.backend.UpdateMembers(ctx, h.ref, res.Members); err != nil {
			res.MembershipUpdate = UpdateFailed
			res.Warnings = append(res.Warnings, fmt.Errorf("%w: %w", ErrMembershipUpdateFailed, err))
			logger.Warn(ctx, "更新通话成员失败，继续加入", logger.ErrorField("error", err))
		} else {
			res.MembershipUpdate = UpdateApplied
		}
		if c.abandoned(ctx, h) {
			return res, ErrCallEnded
		}
	}

	// 5. 核对本地身份是否在成员列表中（仅诊断）
	records, err := c.backend.QueryMembers(ctx, h.ref)
	switch {
	case err != nil:
		res.Verification = VerificationQueryFailed
		logger.Warn(ctx, "查询通话成员失败", logger.ErrorField("error", err))
	case containsMember(records, id.UserID):
		res.Verification = VerificationListed
	default:
		res.Verification = VerificationNotListed
		logger.Warn(ctx, "本地身份不在成员列表中，按访客加入",
			logger.String("user_id", id.UserID),
			logger.Int("member_count", len(records)),
		)
	}
	if c.abandoned(ctx, h) {
		return res, ErrCallEnded
	}
	if res.Verification == VerificationListed {
		res.JoinPath = JoinPathDirect
	} else {
		res.JoinPath = JoinPathGuest
	}

	// 6. 加入，失败再试一次
	var lastErr error
	for attempt := 1; attempt <= c.cfg.JoinAttempts; attempt++ {
		if attempt > 1 && c.abandoned(ctx, h) {
			return res, ErrCallEnded
		}
		res.Attempts = attempt
		if lastErr = c.backend.Join(ctx, h.ref); lastErr == nil {
			break
		}
		logger.Warn(ctx, "加入通话失败",
			logger.Int("attempt", attempt),
			logger.ErrorField("error", lastErr),
		)
	}
	if lastErr != nil {
		h.transition(model.CallingStateJoining, model.CallingStateIdle)
		return res, fmt.Errorf("%w: %w", ErrJoinFailed, lastErr)
	}

	if !h.transition(model.CallingStateJoining, model.CallingStateJoined) {
		// End 的 leave 先于本次 join 到达后端，需要补发
		logger.Warn(ctx, "加入完成时通话已结束，补发 leave")
		if err := c.backend.Leave(ctx, h.ref); err != nil {
			logger.Warn(ctx, "补发 leave 失败", logger.ErrorField("error", err))
		}
		return res, ErrCallEnded
	}
	logger.Info(ctx, "已加入通话",
		logger.Int("members", len(res.Members)),
		logger.String("join_path", res.JoinPath.String()),
		logger.String("membership_update", res.MembershipUpdate.String()),
		logger.Int("attempts", res.Attempts),
	)
	return res, nil
}

// abandoned 句柄已被 End 结束时放弃后续步骤
func (c *Controller) abandoned(ctx context.Context, h *Handle) bool {
	if h.State() == model.CallingStateJoining {
		return false
	}
	logger.Info(ctx, "通话已结束，停止加入流程")
	return true
}

func (c *Controller) resolveMembers(ctx context.Context, ringCode string, res *JoinResult) []string {
	if ringCode == "" || c.doorbells == nil {
		res.Resolution = ResolutionSkipped
		return nil
	}
	bell, err := c.doorbells.GetDoorbell(ctx, ringCode)
	if err != nil {
		res.Resolution = ResolutionFailed
		res.Warnings = append(res.Warnings, fmt.Errorf("%w: %w", ErrMembershipResolutionFailed, err))
		logger.Warn(ctx, "门铃成员解析失败，只呼叫本地成员",
			logger.String("ring_code", ringCode),
			logger.ErrorField("error", err),
		)
		return nil
	}
	if bell == nil || len(bell.MemberStreamIDs) == 0 {
		res.Resolution = ResolutionEmpty
		return nil
	}
	res.Resolution = ResolutionResolved
	return bell.MemberStreamIDs
}

// End 结束通话：未离开则发送 leave（失败只记录），丢弃句柄；
// 会话仍有效时新建空闲句柄，否则 NextCallID 为空（回到入口）。
func (c *Controller) End(ctx context.Context) EndResult {
	out := c.leaveCurrent(ctx)
	if !c.identity().Authenticated {
		return out
	}
	c.mu.Lock()
	if c.handle == nil {
		c.handle = c.newHandleLocked()
	}
	out.NextCallID = c.handle.ref.ID
	c.mu.Unlock()
	return out
}

// Discard 离开并丢弃当前句柄，不再新建（随后会登出或退出）
func (c *Controller) Discard(ctx context.Context) EndResult {
	return c.leaveCurrent(ctx)
}

func (c *Controller) leaveCurrent(ctx context.Context) EndResult {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()

	var out EndResult
	if h != nil {
		ctx = ctxmeta.WithCallID(ctx, h.ref.ID)
		if prev := h.set(model.CallingStateLeft); !prev.Terminal() {
			out.Left = true
			if err := c.backend.Leave(ctx, h.ref); err != nil {
				logger.Warn(ctx, "离开通话失败，忽略", logger.ErrorField("error", err))
			}
		}
	}
	return out
}
