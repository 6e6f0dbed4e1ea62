package session

import "errors"

var (
	// ErrSessionStartFailed 创建匿名会话失败（不自动重试）
	ErrSessionStartFailed = errors.New("session start failed")
	// ErrProfilePreconditionUnmet 缺少 token / sessionId / mac，未发出任何请求
	ErrProfilePreconditionUnmet = errors.New("profile precondition unmet")
	// ErrUploadFailed 照片上传失败或没有返回地址
	ErrUploadFailed = errors.New("photo upload failed")
	// ErrRegistrationFailed 会话登记（首次或更新照片）失败
	ErrRegistrationFailed = errors.New("session registration failed")
	// ErrSuperseded 请求返回前会话已被登出或过期，结果被丢弃
	ErrSuperseded = errors.New("session superseded")
)
