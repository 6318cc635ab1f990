package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix  = "token"
	expireKeyPrefix = "expire"
)

// Session 是某个用户当前持有的 token 及其绝对过期时间（毫秒时间戳）。
type Session struct {
	UserID    string
	Token     string
	ExpiresAt int64
}

// Store 会话存储抽象，便于在测试中替换。
type Store interface {
	// Load 读取会话；不存在时 found 为 false。
	Load(ctx context.Context, userID string) (s Session, found bool, err error)
	// Save 写入会话，ttl 为缓存层的淘汰时间。
	Save(ctx context.Context, s Session, ttl time.Duration) error
	// Delete 删除会话。
	Delete(ctx context.Context, userID string) error
}

// RedisStore 基于 Redis 的会话存储。
//
// 键布局：token<userid> 保存 token，expire<userid> 保存过期毫秒时间戳。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore 创建 Redis 会话存储。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func tokenKey(userID string) string  { return tokenKeyPrefix + userID }
func expireKey(userID string) string { return expireKeyPrefix + userID }

// Load 用 MGET 一次取回两个键，任意一个缺失都视为会话不存在。
func (s *RedisStore) Load(ctx context.Context, userID string) (Session, bool, error) {
	vals, err := s.rdb.MGet(ctx, tokenKey(userID), expireKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("session mget: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Session{}, false, nil
	}
	token, _ := vals[0].(string)
	rawExpire, _ := vals[1].(string)
	if token == "" || rawExpire == "" {
		return Session{}, false, nil
	}
	expiresAt, err := strconv.ParseInt(rawExpire, 10, 64)
	if err != nil {
		return Session{}, false, nil
	}
	return Session{UserID: userID, Token: token, ExpiresAt: expiresAt}, true, nil
}

// Save 在一个 MULTI/EXEC 中写入两个键，保证 token 与过期时间同时可见。
func (s *RedisStore) Save(ctx context.Context, sess Session, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(sess.UserID), sess.Token, ttl)
		pipe.Set(ctx, expireKey(sess.UserID), strconv.FormatInt(sess.ExpiresAt, 10), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, tokenKey(userID), expireKey(userID)).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}
