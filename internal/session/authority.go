// Package session 负责签发、续期、校验和吊销不透明的会话 token。
package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sayhi/internal/pkg/metrics"
)

// DefaultTTL token 的滑动有效期。
const DefaultTTL = 7 * 24 * time.Hour

// Token 是返回给客户端的会话凭证。
type Token struct {
	Value     string `json:"token"`
	ExpiresAt int64  `json:"token_expire"`
}

// Authority 会话权威：所有 token 的读写都经由它。
type Authority struct {
	store     Store
	ttl       time.Duration
	clockSkew time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option 配置 Authority。
type Option func(*Authority)

// WithClock 注入时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithClockSkew 设置缓存层在过期时间之后额外保留键的时长。
func WithClockSkew(d time.Duration) Option {
	return func(a *Authority) { a.clockSkew = d }
}

// NewAuthority 创建会话权威。ttl <= 0 时使用 DefaultTTL。
func NewAuthority(store Store, ttl time.Duration, logger *slog.Logger, opts ...Option) *Authority {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authority{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IssueOrRenew 为用户签发或续期 token。
//
// 已有 token 时保持 token 不变，只把过期时间重置为 now+ttl；
// 否则生成新的随机 token。
func (a *Authority) IssueOrRenew(ctx context.Context, userID string) (Token, error) {
	if userID == "" {
		return Token{}, fmt.Errorf("issue token: empty user id")
	}
	existing, found, err := a.store.Load(ctx, userID)
	if err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}

	kind := "renewed"
	value := existing.Token
	if !found {
		kind = "issued"
		value = uuid.NewString()
	}

	now := a.now()
	sess := Session{
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(a.ttl).UnixMilli(),
	}
	if err := a.store.Save(ctx, sess, a.ttl+a.clockSkew); err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	metrics.TokenIssuedTotal.WithLabelValues(kind).Inc()
	a.logger.Debug("session token "+kind, slog.String("userid", userID))
	return Token{Value: sess.Token, ExpiresAt: sess.ExpiresAt}, nil
}

// Validate 校验 token 与请求时间戳，任何缺失或存储故障都返回 false。
func (a *Authority) Validate(ctx context.Context, userID, token string, requestTimestamp int64) bool {
	ok := a.validate(ctx, userID, token, requestTimestamp)
	result := "valid"
	if !ok {
		result = "invalid"
	}
	metrics.TokenValidationTotal.WithLabelValues(result).Inc()
	return ok
}

func (a *Authority) validate(ctx context.Context, userID, token string, requestTimestamp int64) bool {
	if userID == "" || token == "" {
		return false
	}
	sess, found, err := a.store.Load(ctx, userID)
	if err != nil {
		a.logger.Warn("session lookup failed",
			slog.String("userid", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !found {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(sess.Token), []byte(token)) != 1 {
		return false
	}
	return requestTimestamp <= sess.ExpiresAt
}

// Revoke 清除用户的 token 与过期时间。
func (a *Authority) Revoke(ctx context.Context, userID string) error {
	if err := a.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
