package config

import "time"

// SessionConfig 匿名会话配置
type SessionConfig struct {
	// DefaultExpiresIn 后端未返回 expiresIn 时使用的有效期
	DefaultExpiresIn time.Duration `json:"defaultExpiresIn" yaml:"defaultExpiresIn"`
	// PhotoFileName multipart 上传时的文件名
	PhotoFileName string      `json:"photoFileName" yaml:"photoFileName"`
	Store         StoreConfig `json:"store" yaml:"store"`
}

// StoreConfig 会话持久化配置
type StoreConfig struct {
	Driver   string      `json:"driver" yaml:"driver"`     // memory / file / redis
	FilePath string      `json:"filePath" yaml:"filePath"` // driver=file 时的存储文件
	Instance string      `json:"instance" yaml:"instance"` // driver=redis 时区分设备的实例名
	Redis    RedisConfig `json:"redis" yaml:"redis"`
}

const (
	StoreDriverMemory = "memory"
	StoreDriverFile   = "file"
	StoreDriverRedis  = "redis"
)

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DefaultExpiresIn: time.Hour,
		PhotoFileName:    "photo.jpg",
		Store: StoreConfig{
			Driver:   StoreDriverFile,
			FilePath: ".doorbell/session.json",
			Instance: "default",
			Redis:    DefaultRedisConfig(),
		},
	}
}
