package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	rediskey "DoorbellCall/consts/redisKey"
	"DoorbellCall/model"

	"github.com/redis/go-redis/v9"
)

var redisErrorRules = map[error]error{
	redis.Nil: ErrRedisNil,
}

// WrapRedisError 包装 Redis 错误
func WrapRedisError(err error) error {
	return wrapError(err, redisErrorRules, ErrStore)
}

// RedisStore 多台门口机共用 Redis 时使用，instance 区分设备
type RedisStore struct {
	client   redis.Cmdable
	instance string
}

func NewRedisStore(client redis.Cmdable, instance string) *RedisStore {
	return &RedisStore{client: client, instance: instance}
}

func (s *RedisStore) Load(ctx context.Context) (model.PersistedState, error) {
	var state model.PersistedState

	mac, err := s.client.Get(ctx, rediskey.DeviceMacKey(s.instance)).Result()
	if err != nil && !errors.Is(WrapRedisError(err), ErrRedisNil) {
		return state, WrapRedisError(err)
	}
	state.DeviceMAC = mac

	name, err := s.client.Get(ctx, rediskey.UserNameKey(s.instance)).Result()
	if err != nil && !errors.Is(WrapRedisError(err), ErrRedisNil) {
		return state, WrapRedisError(err)
	}
	state.UserName = name

	fields, err := s.client.HGetAll(ctx, rediskey.SessionKey(s.instance)).Result()
	if err != nil {
		return state, WrapRedisError(err)
	}
	if len(fields) == 0 {
		return state, nil
	}
	state.Session = decodeSession(fields)
	return state, nil
}

func (s *RedisStore) Save(ctx context.Context, state model.PersistedState) error {
	macKey := rediskey.DeviceMacKey(s.instance)
	nameKey := rediskey.UserNameKey(s.instance)
	sessKey := rediskey.SessionKey(s.instance)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if state.DeviceMAC != "" {
			pipe.Set(ctx, macKey, state.DeviceMAC, 0)
		}
		if state.UserName != "" {
			pipe.Set(ctx, nameKey, state.UserName, 0)
		} else {
			pipe.Del(ctx, nameKey)
		}
		// 整体覆盖，避免遗留上一个会话的字段
		pipe.Del(ctx, sessKey)
		if state.Session == nil {
			return nil
		}
		pipe.HSet(ctx, sessKey, encodeSession(state.Session))
		if state.Session.ExpiresAt.IsZero() {
			pipe.Expire(ctx, sessKey, rediskey.SessionNoExpiryTTL)
		} else {
			pipe.ExpireAt(ctx, sessKey, state.Session.ExpiresAt.Add(rediskey.SessionGraceTTL))
		}
		return nil
	})
	return WrapRedisError(err)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return WrapRedisError(s.client.Del(ctx, rediskey.SessionKey(s.instance), rediskey.UserNameKey(s.instance)).Err())
}

func encodeSession(sess *model.AnonymousSession) map[string]interface{} {
	fields := map[string]interface{}{
		rediskey.FieldToken:           sess.Token,
		rediskey.FieldSessionID:       sess.SessionID,
		rediskey.FieldUserName:        sess.UserName,
		rediskey.FieldProfileComplete: strconv.FormatBool(sess.ProfileComplete),
		rediskey.FieldExpiresAt:       "0",
	}
	if !sess.ExpiresAt.IsZero() {
		fields[rediskey.FieldExpiresAt] = strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10)
	}
	return fields
}

func decodeSession(fields map[string]string) *model.AnonymousSession {
	sess := &model.AnonymousSession{
		Token:     fields[rediskey.FieldToken],
		SessionID: fields[rediskey.FieldSessionID],
		UserName:  fields[rediskey.FieldUserName],
	}
	sess.ProfileComplete, _ = strconv.ParseBool(fields[rediskey.FieldProfileComplete])
	if ms, err := strconv.ParseInt(fields[rediskey.FieldExpiresAt], 10, 64); err == nil && ms > 0 {
		sess.ExpiresAt = time.UnixMilli(ms)
	}
	return sess
}
