package config

import "time"

// DevBackendConfig 本地开发后端配置
type DevBackendConfig struct {
	Addr             string              `json:"addr" yaml:"addr"`
	SessionSecret    string              `json:"sessionSecret" yaml:"sessionSecret"` // 会话 token 签名密钥
	SessionTTL       time.Duration       `json:"sessionTTL" yaml:"sessionTTL"`
	PublicBaseURL    string              `json:"publicBaseUrl" yaml:"publicBaseUrl"` // 媒体文件对外地址
	MaxUploadSize    int64               `json:"maxUploadSize" yaml:"maxUploadSize"`
	MediaCacheSize   int                 `json:"mediaCacheSize" yaml:"mediaCacheSize"`   // 内存中最多保留的文件数
	StartRatePerSec  float64             `json:"startRatePerSec" yaml:"startRatePerSec"` // 每个 IP 创建会话速率
	StartBurst       int                 `json:"startBurst" yaml:"startBurst"`
	LimiterCacheSize int                 `json:"limiterCacheSize" yaml:"limiterCacheSize"`
	NodeID           int64               `json:"nodeId" yaml:"nodeId"` // snowflake 节点
	AllowGuestJoin   bool                `json:"allowGuestJoin" yaml:"allowGuestJoin"`
	Doorbells        map[string][]string `json:"doorbells" yaml:"doorbells"` // ring code -> memberStreamIds
	ShutdownTimeout  time.Duration       `json:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// DefaultDevBackendConfig 返回本地开发的默认配置
func DefaultDevBackendConfig() DevBackendConfig {
	return DevBackendConfig{
		Addr:             ":8080",
		SessionSecret:    "local-dev-session-secret",
		SessionTTL:       time.Hour,
		PublicBaseURL:    "http://localhost:8080/api",
		MaxUploadSize:    10 * 1024 * 1024,
		MediaCacheSize:   512,
		StartRatePerSec:  1,
		StartBurst:       5,
		LimiterCacheSize: 4096,
		NodeID:           1,
		AllowGuestJoin:   true,
		Doorbells: map[string][]string{
			"DEMO": {"resident-a", "resident-b"},
		},
		ShutdownTimeout: 10 * time.Second,
	}
}
