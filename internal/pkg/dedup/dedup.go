// Package dedup 用 Redis SETNX 对消息 ID 做短时间窗口内的占位，合并客户端的重复提交。
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sayhi:dedup:message:"

// DefaultWindow 未配置时的占位时长。
const DefaultWindow = time.Minute

// MessageClaims 消息 ID 占位器。nil 接收者是合法的空实现。
type MessageClaims struct {
	rdb    *redis.Client
	window time.Duration
}

// NewMessageClaims 创建占位器。
func NewMessageClaims(rdb *redis.Client, window time.Duration) *MessageClaims {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MessageClaims{
		rdb:    rdb,
		window: window,
	}
}

// Claim 尝试占用 id。返回 false 表示窗口内已有同 ID 的发送。
func (d *MessageClaims) Claim(ctx context.Context, id string) (bool, error) {
	if d == nil || d.rdb == nil || id == "" {
		return true, nil
	}
	ok, err := d.rdb.SetNX(ctx, keyPrefix+id, "1", d.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

// Release 释放占位，用于写库失败后允许客户端重试。
func (d *MessageClaims) Release(ctx context.Context, id string) error {
	if d == nil || d.rdb == nil || id == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}
