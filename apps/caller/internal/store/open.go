package store

import (
	"fmt"

	"DoorbellCall/config"
	pkgredis "DoorbellCall/pkg/redis"
)

// Open 按配置创建会话存储
func Open(cfg config.StoreConfig) (SessionStore, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		return NewMemoryStore(), nil
	case config.StoreDriverFile, "":
		return NewFileStore(cfg.FilePath), nil
	case config.StoreDriverRedis:
		client, err := pkgredis.Build(cfg.Redis)
		if err != nil {
			return nil, err
		}
		pkgredis.ReplaceGlobal(client)
		return NewRedisStore(client, cfg.Instance), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
