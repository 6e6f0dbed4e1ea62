package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"DoorbellCall/model"
)

// ==================== 存储层统一错误定义 ====================

var (
	// ErrStore 持久化读写失败
	ErrStore = errors.New("session store error")

	// ErrCorrupted 持久化内容无法解析
	ErrCorrupted = errors.New("session store corrupted")

	// ErrRedisNil Redis Key 不存在
	ErrRedisNil = errors.New("redis: key not found")
)

// SessionStore 会话持久化接口。
// Clear 清除会话和访客名称，设备 MAC 保留。
type SessionStore interface {
	Load(ctx context.Context) (model.PersistedState, error)
	Save(ctx context.Context, state model.PersistedState) error
	Clear(ctx context.Context) error
}

// wrapError 按规则映射错误，未命中时包装默认错误
func wrapError(err error, rules map[error]error, defaultErr error) error {
	if err == nil {
		return nil
	}
	for source, target := range rules {
		if errors.Is(err, source) {
			return target
		}
	}
	return fmt.Errorf("%w: %v", defaultErr, err)
}

var fileErrorRules = map[error]error{
	os.ErrNotExist: os.ErrNotExist,
}

// WrapFileError 包装文件存储错误（不存在的文件原样返回，调用方按空状态处理）
func WrapFileError(err error) error {
	return wrapError(err, fileErrorRules, ErrStore)
}
