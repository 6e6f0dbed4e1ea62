package redis

import (
	"context"
	"fmt"
	"time"

	"DoorbellCall/config"

	goredis "github.com/redis/go-redis/v9"
)

var global *goredis.Client

// Client 返回全局 Redis 客户端（未初始化时为 nil）
func Client() *goredis.Client {
	return global
}

// ReplaceGlobal 设置全局 Redis 客户端
func ReplaceGlobal(c *goredis.Client) {
	global = c
}

// Build 基于配置创建 Redis 客户端并 Ping 一次
func Build(cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
