package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sayhi/internal/pkg/errno"
)

// 鉴权请求头。
const (
	HeaderUserID         = "x-userid"
	HeaderToken          = "x-token"
	HeaderTokenTimestamp = "x-token-timestamp"
)

// ContextUserID 鉴权通过后写入 gin.Context 的键。
const ContextUserID = "userID"

// TokenValidator 校验用户 token，由 session.Authority 实现。
type TokenValidator interface {
	Validate(ctx context.Context, userID, token string, requestTimestamp int64) bool
}

// AuthPolicy 决定某个请求是否需要 token。
type AuthPolicy struct {
	exact    map[string]struct{}
	prefixes map[string]map[string]struct{}
}

// NewAuthPolicy 创建鉴权策略。
//
// 参数:
//   - exact: 与方法无关、整路径匹配的接口
//   - prefixes: 资源前缀 -> 需要鉴权的 HTTP 方法
func NewAuthPolicy(exact []string, prefixes map[string][]string) *AuthPolicy {
	p := &AuthPolicy{
		exact:    make(map[string]struct{}, len(exact)),
		prefixes: make(map[string]map[string]struct{}, len(prefixes)),
	}
	for _, path := range exact {
		p.exact[path] = struct{}{}
	}
	for prefix, methods := range prefixes {
		set := make(map[string]struct{}, len(methods))
		for _, m := range methods {
			set[strings.ToUpper(m)] = struct{}{}
		}
		p.prefixes[strings.TrimRight(prefix, "/")] = set
	}
	return p
}

// DefaultAuthPolicy 返回服务使用的鉴权表。
func DefaultAuthPolicy() *AuthPolicy {
	return NewAuthPolicy(
		[]string{"/checkUserAuth", "/sendMessage", "/queryHistoryMessage", "/randomPickUsers"},
		map[string][]string{
			"/api/v1/users":         {http.MethodPut, http.MethodGet, http.MethodPatch, http.MethodDelete},
			"/api/v1/messages":      {http.MethodPost, http.MethodPut, http.MethodGet, http.MethodPatch, http.MethodDelete},
			"/api/v1/notifications": {http.MethodPut, http.MethodGet, http.MethodPatch, http.MethodDelete},
		},
	)
}

// RequiresAuth 判断 method+path 是否需要 token。前缀只在路径段边界上匹配。
func (p *AuthPolicy) RequiresAuth(method, path string) bool {
	if _, ok := p.exact[path]; ok {
		return true
	}
	method = strings.ToUpper(method)
	for prefix, methods := range p.prefixes {
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		if _, ok := methods[method]; ok {
			return true
		}
	}
	return false
}

// SessionToken 按策略校验 x-userid / x-token / x-token-timestamp。
// 校验失败时返回统一的 401 响应体并中止请求。
func SessionToken(policy *AuthPolicy, validator TokenValidator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !policy.RequiresAuth(c.Request.Method, c.Request.URL.Path) {
			c.Next()
			return
		}

		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		token := strings.TrimSpace(c.GetHeader(HeaderToken))
		ts, err := strconv.ParseInt(strings.TrimSpace(c.GetHeader(HeaderTokenTimestamp)), 10, 64)
		if err != nil || !validator.Validate(c.Request.Context(), userID, token, ts) {
			if logger != nil {
				logger.Info("token validation failed",
					slog.String("method", c.Request.Method),
					slog.String("path", c.Request.URL.Path),
					slog.String("userid", userID),
				)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errno.Failure(errno.New(errno.KindAuth, errno.InvalidToken, ""), false))
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID 读取鉴权中间件写入的用户 ID。
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
