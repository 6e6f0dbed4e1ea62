package session

import "DoorbellCall/model"

// State 会话状态
type State int

const (
	StateUninitialized State = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// LogoutReason 登出原因
type LogoutReason string

const (
	ReasonUser         LogoutReason = "user"
	ReasonExpired      LogoutReason = "expired"
	ReasonUnauthorized LogoutReason = "unauthorized"
)

// EventType 会话事件
type EventType int

const (
	EventAuthenticated EventType = iota + 1
	EventProfileCompleted
	EventLoggedOut
)

// Event 状态变化通知，Snapshot 为事件发生时的状态
type Event struct {
	Type     EventType
	Reason   LogoutReason
	Snapshot Snapshot
}

// Snapshot 会话只读视图
type Snapshot struct {
	State         State
	Session       model.AnonymousSession
	DeviceMAC     string
	CallUserID    string
	Authenticated bool
}
