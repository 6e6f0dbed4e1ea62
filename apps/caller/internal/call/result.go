package call

import "DoorbellCall/model"

// Resolution 门铃成员解析结果
type Resolution int

const (
	ResolutionSkipped  Resolution = iota // 没有 ring code
	ResolutionResolved                   // 查到了成员
	ResolutionEmpty                      // 门铃没有成员
	ResolutionFailed                     // 查询失败，降级为只有本地成员
)

func (r Resolution) String() string {
	switch r {
	case ResolutionSkipped:
		return "skipped"
	case ResolutionResolved:
		return "resolved"
	case ResolutionEmpty:
		return "empty"
	case ResolutionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MembershipUpdate 强制更新成员的结果
type MembershipUpdate int

const (
	UpdateNotNeeded MembershipUpdate = iota
	UpdateApplied
	UpdateFailed
)

func (u MembershipUpdate) String() string {
	switch u {
	case UpdateNotNeeded:
		return "not_needed"
	case UpdateApplied:
		return "applied"
	case UpdateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Verification 加入前成员核对结果（仅诊断）
type Verification int

const (
	VerificationUnchecked Verification = iota // 未走到核对步骤
	VerificationListed
	VerificationNotListed
	VerificationQueryFailed
)

func (v Verification) String() string {
	switch v {
	case VerificationUnchecked:
		return "unchecked"
	case VerificationListed:
		return "listed"
	case VerificationNotListed:
		return "not_listed"
	case VerificationQueryFailed:
		return "query_failed"
	default:
		return "unknown"
	}
}

// JoinPath 加入方式
type JoinPath int

const (
	JoinPathDirect JoinPath = iota // 本地身份在成员列表中
	JoinPathGuest                  // 不在列表中，按访客尽力加入
)

func (p JoinPath) String() string {
	if p == JoinPathDirect {
		return "direct"
	}
	return "guest"
}

// JoinResult 一次加入流程各步骤的结果
type JoinResult struct {
	CallID  string
	Members []model.Member

	// Skipped 句柄不是空闲状态，本次调用为空操作
	Skipped bool

	Resolution       Resolution
	MembershipUpdate MembershipUpdate
	Verification     Verification
	JoinPath         JoinPath
	Attempts         int

	// Warnings 不影响结果的错误（成员解析失败、成员更新失败）
	Warnings []error
}

// EndResult 结束通话后的去向
type EndResult struct {
	// Left 是否向后端发送了 leave
	Left bool
	// NextCallID 仍有会话时新建的空闲句柄；为空表示回到入口
	NextCallID string
}
