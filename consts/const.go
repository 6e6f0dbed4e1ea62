package consts

// 通用错误码
const (
	CodeSuccess = 0 // 成功
)

// 客户端错误 (1xxxx)
const (
	CodeParamError       = 10001 // 参数验证失败
	CodeBodyError        = 10002 // 请求体格式错误
	CodeResourceNotFound = 10003 // 资源不存在
	CodeMethodNotAllowed = 10004 // 请求方法不允许
	CodeTooManyRequests  = 10005 // 请求过于频繁
	CodeBodyTooLarge     = 10006 // 请求体过大
)

// 认证错误 (2xxxx)
const (
	CodeUnauthorized   = 20001 // 未认证
	CodeInvalidToken   = 20002 // Token 无效
	CodeTokenExpired   = 20003 // Token 已过期
	CodePermissionDeny = 20004 // 权限不足
)

// 匿名会话模块错误 (15xxx)
const (
	CodeSessionStartFailed  = 15001 // 创建匿名会话失败
	CodeProfilePrecondition = 15002 // 会话信息不完整
	CodeUploadFailed        = 15003 // 照片上传失败
	CodeRegistrationFailed  = 15004 // 会话登记失败
	CodeNoActiveSession     = 15005 // 没有有效会话
	CodeSessionNotFound     = 15006 // 会话不存在
)

// 通话模块错误 (16xxx)
const (
	CodeDoorbellNotFound       = 16001 // 门铃不存在
	CodeMembershipResolution   = 16002 // 门铃成员解析失败
	CodeCallConnectivity       = 16003 // 无法连接通话服务
	CodeJoinFailed             = 16004 // 加入通话失败
	CodeCallNotFound           = 16005 // 通话不存在
	CodeNotCallMember          = 16006 // 不是通话成员
	CodeUnknownSignalingMethod = 16007 // 未知的信令方法
)

// 服务端错误 (3xxxx)
const (
	CodeInternalError = 30001 // 服务器内部错误
)

// 错误消息映射
var CodeMessage = map[int32]string{
	CodeSuccess: "success",

	// 客户端错误
	CodeParamError:       "参数验证失败",
	CodeBodyError:        "请求体格式错误",
	CodeResourceNotFound: "资源不存在",
	CodeMethodNotAllowed: "请求方法不允许",
	CodeTooManyRequests:  "请求过于频繁",
	CodeBodyTooLarge:     "请求体过大",

	// 认证错误
	CodeUnauthorized:   "未认证",
	CodeInvalidToken:   "Token 无效",
	CodeTokenExpired:   "Token 已过期",
	CodePermissionDeny: "权限不足",

	// 匿名会话模块
	CodeSessionStartFailed:  "创建匿名会话失败",
	CodeProfilePrecondition: "会话信息不完整",
	CodeUploadFailed:        "照片上传失败",
	CodeRegistrationFailed:  "会话登记失败",
	CodeNoActiveSession:     "没有有效会话",
	CodeSessionNotFound:     "会话不存在",

	// 通话模块
	CodeDoorbellNotFound:       "门铃不存在",
	CodeMembershipResolution:   "门铃成员解析失败",
	CodeCallConnectivity:       "无法连接通话服务",
	CodeJoinFailed:             "加入通话失败",
	CodeCallNotFound:           "通话不存在",
	CodeNotCallMember:          "不是通话成员",
	CodeUnknownSignalingMethod: "未知的信令方法",

	// 服务端错误
	CodeInternalError: "服务器内部错误",
}

// GetMessage 根据错误码获取错误消息
func GetMessage(code int32) string {
	if msg, ok := CodeMessage[code]; ok {
		return msg
	}
	return "未知错误"
}
