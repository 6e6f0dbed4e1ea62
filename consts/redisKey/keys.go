package rediskey

import (
	"fmt"
	"time"
)

// ==================== TTL 常量 ====================

const (
	// SessionGraceTTL 会话过期后 key 多保留的时间，便于排查
	SessionGraceTTL = 5 * time.Minute
	// SessionNoExpiryTTL 后端没给 expiresIn 且本地也没有过期时间时的兜底 TTL
	SessionNoExpiryTTL = 24 * time.Hour
)

// ==================== 会话哈希字段 ====================

const (
	FieldToken           = "token"
	FieldSessionID       = "session_id"
	FieldUserName        = "user_name"
	FieldExpiresAt       = "expires_at" // unix 毫秒
	FieldProfileComplete = "profile_complete"
)

// ==================== Key 构造函数 ====================

// DeviceMacKey 设备 MAC Key: doorbell:device:{instance}:mac
func DeviceMacKey(instance string) string {
	return fmt.Sprintf("doorbell:device:%s:mac", instance)
}

// UserNameKey 访客名称 Key: doorbell:device:{instance}:user_name
func UserNameKey(instance string) string {
	return fmt.Sprintf("doorbell:device:%s:user_name", instance)
}

// SessionKey 会话哈希 Key: doorbell:session:{instance}
func SessionKey(instance string) string {
	return fmt.Sprintf("doorbell:session:%s", instance)
}
