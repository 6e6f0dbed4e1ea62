package config

import "time"

// CallConfig 通话后端配置
type CallConfig struct {
	CoordinatorURL string        `json:"coordinatorUrl" yaml:"coordinatorUrl"` // 信令 websocket 地址
	APIKey         string        `json:"apiKey" yaml:"apiKey"`
	APISecret      string        `json:"apiSecret" yaml:"apiSecret"` // 本地签发通话凭证用
	CallType       string        `json:"callType" yaml:"callType"`
	TokenTTL       time.Duration `json:"tokenTTL" yaml:"tokenTTL"`
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"` // 单个信令请求超时
	DialTimeout    time.Duration `json:"dialTimeout" yaml:"dialTimeout"`
	// JoinAttempts 加入通话尝试次数，取值 1 或 2，超出按 2 处理
	JoinAttempts int `json:"joinAttempts" yaml:"joinAttempts"`
}

// DefaultCallConfig 返回本地开发的默认配置
func DefaultCallConfig() CallConfig {
	return CallConfig{
		CoordinatorURL: "ws://localhost:8080/ws",
		APIKey:         "local-dev-key",
		APISecret:      "local-dev-secret",
		CallType:       "default",
		TokenTTL:       time.Hour,
		RequestTimeout: 10 * time.Second,
		DialTimeout:    5 * time.Second,
		JoinAttempts:   2,
	}
}
