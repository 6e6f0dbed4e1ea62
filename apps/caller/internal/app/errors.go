package app

import (
	"errors"

	"DoorbellCall/apps/caller/internal/call"
	"DoorbellCall/apps/caller/internal/session"
	"DoorbellCall/consts"
)

// codeRules 按顺序匹配，包装链中先出现的规则优先
var codeRules = []struct {
	err  error
	code int32
}{
	{ErrNotReady, consts.CodeNoActiveSession},
	{call.ErrNoActiveSession, consts.CodeNoActiveSession},
	{session.ErrSessionStartFailed, consts.CodeSessionStartFailed},
	{session.ErrProfilePreconditionUnmet, consts.CodeProfilePrecondition},
	{session.ErrUploadFailed, consts.CodeUploadFailed},
	{session.ErrRegistrationFailed, consts.CodeRegistrationFailed},
	{call.ErrConnectivity, consts.CodeCallConnectivity},
	{call.ErrMembershipResolutionFailed, consts.CodeMembershipResolution},
	{call.ErrJoinFailed, consts.CodeJoinFailed},
}

// CodeOf 把会话与通话错误映射为业务码，nil 为 CodeSuccess，未知错误为 CodeInternalError
func CodeOf(err error) int32 {
	if err == nil {
		return consts.CodeSuccess
	}
	for _, r := range codeRules {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return consts.CodeInternalError
}
