package config

import "time"

// BackendConfig 会话后端 HTTP 客户端配置
type BackendConfig struct {
	BaseURL        string        `json:"baseUrl" yaml:"baseUrl"`               // 后端 API 根地址
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"` // 普通请求超时
	UploadTimeout  time.Duration `json:"uploadTimeout" yaml:"uploadTimeout"`   // 媒体上传超时
	Breaker        BreakerConfig `json:"breaker" yaml:"breaker"`               // 熔断配置
}

// BreakerConfig 熔断器配置（gobreaker）
type BreakerConfig struct {
	MaxRequests  uint32        `json:"maxRequests" yaml:"maxRequests"`   // 半开状态允许的探测请求数
	Interval     time.Duration `json:"interval" yaml:"interval"`         // 闭合状态统计周期
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`           // 打开后多久进入半开
	MinRequests  uint32        `json:"minRequests" yaml:"minRequests"`   // 触发熔断的最小请求数
	FailureRatio float64       `json:"failureRatio" yaml:"failureRatio"` // 触发熔断的失败率
}

// DefaultBackendConfig 返回本地开发的默认配置
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		BaseURL:        "http://localhost:8080/api",
		RequestTimeout: 10 * time.Second,
		UploadTimeout:  30 * time.Second,
		Breaker:        DefaultBreakerConfig(),
	}
}

// DefaultBreakerConfig 与网关下游熔断保持一致
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     15 * time.Second,
		Timeout:      45 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}
