// Package auth 提供注册、登录与 token 确认接口。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sayhi/internal/model"
	"sayhi/internal/pkg/errno"
	"sayhi/internal/pkg/metrics"
	"sayhi/internal/repository"
	"sayhi/internal/session"
)

// 生成 userid 时遇到碰撞的最大重试次数。
const maxUserIDAttempts = 3

// UserStore 认证流程需要的用户存储能力。
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByUserID(ctx context.Context, userID string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindAllByUsername(ctx context.Context, username string) ([]model.User, error)
}

// TokenIssuer 登录成功后签发或续期 token。
type TokenIssuer interface {
	IssueOrRenew(ctx context.Context, userID string) (session.Token, error)
}

// Handler 提供注册与登录接口。
type Handler struct {
	users    UserStore
	sessions TokenIssuer
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler 创建 Auth Handler。
func NewHandler(users UserStore, sessions TokenIssuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		users:    users,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Realname string `json:"realname" binding:"required"`
	Username string `json:"username"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	Avatar   string `json:"avatar"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	model.User
	Token       string `json:"token"`
	TokenExpire int64  `json:"token_expire"`
}

type checkAuthRequest struct {
	UserID string `json:"userid"`
	Token  string `json:"token"`
}

// HashPassword 使用 bcrypt 生成密码哈希。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register 创建新用户，返回自增 id 与 userid。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errno.Validation("", err.Error()))
		return
	}
	ctx := c.Request.Context()
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if _, err := h.users.FindByEmail(ctx, email); err == nil {
		_ = c.Error(errno.New(errno.KindConflict, errno.DuplicateEmail, ""))
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		_ = c.Error(errno.Storage(errno.QueryFailed, err))
		return
	}

	userID, err := h.newUserID(ctx)
	if err != nil {
		_ = c.Error(errno.Storage(errno.InsertFailed, err))
		return
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		_ = c.Error(errno.Storage(errno.InsertFailed, err))
		return
	}

	now := h.now().UnixMilli()
	user := model.User{
		UserID:     userID,
		Username:   defaultString(strings.TrimSpace(req.Username), "username"),
		Realname:   strings.TrimSpace(req.Realname),
		Email:      email,
		Password:   hash,
		Age:        req.Age,
		Gender:     defaultString(strings.TrimSpace(req.Gender), "unknown"),
		Avatar:     req.Avatar,
		Status:     model.UserStatusActive,
		CreateTime: now,
		EditTime:   now,
	}
	if err := h.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			_ = c.Error(errno.New(errno.KindConflict, errno.DuplicateEmail, ""))
			return
		}
		_ = c.Error(errno.Storage(errno.InsertFailed, err))
		return
	}

	h.logger.Info("user registered", slog.String("userid", user.UserID), slog.String("email", email))
	c.JSON(http.StatusCreated, errno.Success(gin.H{"id": user.ID, "userid": user.UserID}))
}

func (h *Handler) newUserID(ctx context.Context) (string, error) {
	for i := 0; i < maxUserIDAttempts; i++ {
		id := uuid.NewString()
		_, err := h.users.FindByUserID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("generate userid: too many collisions")
}

// Login 以用户名或邮箱 + 密码登录，成功后签发或续期 token。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.LoginTotal.WithLabelValues("invalid").Inc()
		_ = c.Error(errno.Validation("", err.Error()))
		return
	}
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if username == "" && email == "" {
		metrics.LoginTotal.WithLabelValues("invalid").Inc()
		_ = c.Error(errno.Validation("", "username or email is required"))
		return
	}

	ctx := c.Request.Context()
	candidates, err := h.candidates(ctx, username, email)
	if err != nil {
		metrics.LoginTotal.WithLabelValues("error").Inc()
		_ = c.Error(errno.Storage(errno.QueryFailed, err))
		return
	}

	var user *model.User
	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].Password), []byte(req.Password)) == nil {
			user = &candidates[i]
			break
		}
	}
	if user == nil {
		metrics.LoginTotal.WithLabelValues("mismatch").Inc()
		_ = c.Error(errno.New(errno.KindAuth, errno.LoginMismatch, ""))
		return
	}

	token, err := h.sessions.IssueOrRenew(ctx, user.UserID)
	if err != nil {
		metrics.LoginTotal.WithLabelValues("error").Inc()
		_ = c.Error(errno.Storage(errno.QueryFailed, err))
		return
	}

	metrics.LoginTotal.WithLabelValues("success").Inc()
	h.logger.Info("user logged in", slog.String("userid", user.UserID))
	c.JSON(http.StatusOK, errno.Success(loginResponse{
		User:        *user,
		Token:       token.Value,
		TokenExpire: token.ExpiresAt,
	}))
}

func (h *Handler) candidates(ctx context.Context, username, email string) ([]model.User, error) {
	if username != "" {
		return h.users.FindAllByUsername(ctx, username)
	}
	u, err := h.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []model.User{*u}, nil
}

// CheckUserAuth 回显 token 与 userid。真正的校验由 SessionToken 中间件完成。
func (h *Handler) CheckUserAuth(c *gin.Context) {
	var req checkAuthRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errno.Validation("", err.Error()))
			return
		}
	}
	c.JSON(http.StatusOK, errno.Success(gin.H{"token": req.Token, "userid": req.UserID}))
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
