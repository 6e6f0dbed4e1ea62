package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig 客户端与开发后端共用的完整配置
type AppConfig struct {
	Logger     LoggerConfig     `json:"logger" yaml:"logger"`
	Backend    BackendConfig    `json:"backend" yaml:"backend"`
	Session    SessionConfig    `json:"session" yaml:"session"`
	Media      MediaConfig      `json:"media" yaml:"media"`
	Call       CallConfig       `json:"call" yaml:"call"`
	Async      AsyncConfig      `json:"async" yaml:"async"`
	DevBackend DevBackendConfig `json:"devBackend" yaml:"devBackend"`
}

// EnvPrefix 环境变量覆盖前缀
const EnvPrefix = "DOORBELL_"

// Default 返回全部模块的默认配置
func Default() AppConfig {
	return AppConfig{
		Logger:     DefaultLoggerConfig(),
		Backend:    DefaultBackendConfig(),
		Session:    DefaultSessionConfig(),
		Media:      DefaultMediaConfig(),
		Call:       DefaultCallConfig(),
		Async:      DefaultAsyncConfig(),
		DevBackend: DefaultDevBackendConfig(),
	}
}

// Load 读取配置：默认值 -> YAML 文件 -> 环境变量。
// path 为空或文件不存在时只使用默认值和环境变量。
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 没有配置文件时使用默认值
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖常用字段（容器部署时不必挂配置文件）
func applyEnv(cfg *AppConfig, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("LOG_LEVEL", &cfg.Logger.Level)
	str("LOG_ENCODING", &cfg.Logger.Encoding)
	str("BACKEND_BASE_URL", &cfg.Backend.BaseURL)
	str("STORE_DRIVER", &cfg.Session.Store.Driver)
	str("STORE_FILE", &cfg.Session.Store.FilePath)
	str("STORE_INSTANCE", &cfg.Session.Store.Instance)
	str("REDIS_ADDR", &cfg.Session.Store.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Session.Store.Redis.Password)
	str("MEDIA_DRIVER", &cfg.Media.Driver)
	str("MINIO_ENDPOINT", &cfg.Media.MinIO.Endpoint)
	str("MINIO_ACCESS_KEY", &cfg.Media.MinIO.AccessKeyID)
	str("MINIO_SECRET_KEY", &cfg.Media.MinIO.SecretAccessKey)
	str("CALL_COORDINATOR_URL", &cfg.Call.CoordinatorURL)
	str("CALL_API_KEY", &cfg.Call.APIKey)
	str("CALL_API_SECRET", &cfg.Call.APISecret)
	str("DEV_ADDR", &cfg.DevBackend.Addr)
	str("DEV_SESSION_SECRET", &cfg.DevBackend.SessionSecret)

	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_DB %q: %w", EnvPrefix, v, err)
		}
		cfg.Session.Store.Redis.DB = db
	}
	return nil
}
