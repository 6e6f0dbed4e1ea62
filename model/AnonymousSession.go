package model

import "time"

// AnonymousSession 匿名访客会话
// 核心用途：设备在未登录状态下凭 MAC 换取的短期身份，用于上传照片和发起通话。
type AnonymousSession struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName,omitempty"`

	// ExpiresAt 零值表示后端未给出过期时间
	ExpiresAt time.Time `json:"expiresAt,omitempty"`

	// ProfileComplete 是否已完成首次照片登记
	ProfileComplete bool `json:"profileComplete"`
}

// HasCredentials token 和 sessionId 是否都存在
func (s AnonymousSession) HasCredentials() bool {
	return s.Token != "" && s.SessionID != ""
}

// IsAuthenticated 凭证齐全且未过期
func (s AnonymousSession) IsAuthenticated(now time.Time) bool {
	if !s.HasCredentials() {
		return false
	}
	return s.ExpiresAt.IsZero() || s.ExpiresAt.After(now)
}

// DeviceIdentity 设备身份，首次生成后不再变化
type DeviceIdentity struct {
	MAC string `json:"deviceMac"`
}

// PersistedState 持久化到本地存储的全部字段。
// UserName 独立于会话保存，会话创建前设置的名称也能保留；登出时和会话一起清除。
type PersistedState struct {
	DeviceMAC string            `json:"deviceMac,omitempty"`
	UserName  string            `json:"userName,omitempty"`
	Session   *AnonymousSession `json:"session,omitempty"`
}
