package call

import "errors"

var (
	// ErrNoActiveSession 没有已认证的会话或通话句柄
	ErrNoActiveSession = errors.New("no active session")
	// ErrConnectivity 创建通话失败，未尝试加入，句柄保持空闲
	ErrConnectivity = errors.New("call backend unreachable")
	// ErrMembershipResolutionFailed 门铃成员解析失败，降级为只有本地成员（不致命）
	ErrMembershipResolutionFailed = errors.New("membership resolution failed")
	// ErrMembershipUpdateFailed 强制更新成员失败，已忽略（不致命）
	ErrMembershipUpdateFailed = errors.New("membership update failed")
	// ErrJoinFailed 重试后仍无法加入
	ErrJoinFailed = errors.New("join failed")
	// ErrCallEnded 加入过程中通话被结束
	ErrCallEnded = errors.New("call ended during join")
)
