package dto

// ==================== 匿名会话相关 DTO ====================

// StartSessionRequest 创建匿名会话
type StartSessionRequest struct {
	IDProcess string `json:"idProcess" binding:"omitempty,max=64"` // 客户端请求 id
	MAC       string `json:"mac" binding:"required,len=17"`        // 设备 MAC（XX:XX:XX:XX:XX:XX）
}

// CompleteSessionRequest 首次登记照片
type CompleteSessionRequest struct {
	IDProcess string `json:"idProcess" binding:"omitempty,max=64"`
	MAC       string `json:"mac" binding:"required,len=17"`
	ImgURL    string `json:"imgUrl" binding:"required"`
	SessionID string `json:"sessionId" binding:"omitempty"` // 可选，给出时需与 token 一致
}

// UpdatePhotoRequest 更换照片
type UpdatePhotoRequest struct {
	IDProcess string `json:"idProcess" binding:"omitempty,max=64"`
	ImgURL    string `json:"imgUrl" binding:"required"`
}

// SessionResponse 会话凭证
type SessionResponse struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn,omitempty"` // 秒
}

// UpdatePhotoResponse 更换照片结果
type UpdatePhotoResponse struct {
	SessionID string `json:"sessionId"`
	ImgURL    string `json:"imgUrl"`
}
