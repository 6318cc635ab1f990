package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sayhi/internal/api/auth"
	"sayhi/internal/model"
	"sayhi/internal/pkg/errno"
	"sayhi/internal/repository"
)

var userSortFields = map[string]struct{}{
	"id":          {},
	"create_time": {},
	"edit_time":   {},
	"username":    {},
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Realname *string `json:"realname"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Age      *int    `json:"age"`
	Gender   *string `json:"gender"`
	Avatar   *string `json:"avatar"`
}

// handleListUsers 分页列出用户，默认按 id 升序。
func (s *Server) handleListUsers(c *gin.Context) {
	p, err := parseListParams(c, 10)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if p.Start < 0 || p.End <= p.Start {
		_ = c.Error(errno.Validation("invalid range", map[string]int{"start": p.Start, "end": p.End}))
		return
	}
	limit := p.End - p.Start
	if maxSize := s.cfg.Message.MaxPageSize; maxSize > 0 && limit > maxSize {
		limit = maxSize
	}
	field := p.SortField
	if field == "" {
		field = "id"
	}
	if _, ok := userSortFields[field]; !ok {
		_ = c.Error(errno.Validation("unsupported sort field", map[string]string{"sort": field}))
		return
	}

	users, total, err := s.users.List(c.Request.Context(), repository.UserQuery{
		Status:  p.Filter.Status,
		Offset:  p.Start,
		Limit:   limit,
		OrderBy: field,
		Desc:    strings.EqualFold(p.SortOrder, "DESC"),
	})
	if err != nil {
		_ = c.Error(errno.Storage(errno.QueryFailed, err))
		return
	}
	setTotalCount(c, total)
	c.JSON(http.StatusOK, errno.SuccessWithCount(users, total))
}

// handleGetUser 按 userid 查询用户。
func (s *Server) handleGetUser(c *gin.Context) {
	u, err := s.users.FindByUserID(c.Request.Context(), pathID(c))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = c.Error(errno.New(errno.KindNotFound, errno.QueryFailed, ""))
			return
		}
		_ = c.Error(errno.Storage(errno.QueryFailed, err))
		return
	}
	c.JSON(http.StatusOK, errno.Success(u))
}

// handleUpdateUser 更新当前登录用户的资料，空字段保持不变。
func (s *Server) handleUpdateUser(c *gin.Context) {
	callerID := getUserID(c)
	if id := pathID(c); id != "" && id != callerID {
		_ = c.Error(errno.New(errno.KindAuth, errno.UpdateFailed, "cannot update another user"))
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errno.Validation("", err.Error()))
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.FindByUserID(ctx, callerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = c.Error(errno.New(errno.KindNotFound, errno.NotFound, ""))
			return
		}
		_ = c.Error(errno.Storage(errno.QueryFailed, err))
		return
	}

	changes := repository.UserChanges{EditTime: nowMillis()}
	apply := func(dst *string, v *string, target **string) {
		if v == nil || strings.TrimSpace(*v) == "" {
			return
		}
		val := strings.TrimSpace(*v)
		*dst = val
		*target = &val
	}
	apply(&user.Username, req.Username, &changes.Username)
	apply(&user.Realname, req.Realname, &changes.Realname)
	apply(&user.Gender, req.Gender, &changes.Gender)
	apply(&user.Avatar, req.Avatar, &changes.Avatar)
	if req.Email != nil {
		lowered := strings.ToLower(*req.Email)
		apply(&user.Email, &lowered, &changes.Email)
	}
	if req.Age != nil {
		user.Age = *req.Age
		changes.Age = req.Age
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			_ = c.Error(errno.Storage(errno.UpdateFailed, err))
			return
		}
		changes.Password = &hash
	}

	if err := s.users.Update(ctx, callerID, changes); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			_ = c.Error(errno.New(errno.KindConflict, errno.DuplicateEmail, ""))
			return
		}
		_ = c.Error(errno.Storage(errno.UpdateFailed, err))
		return
	}
	user.EditTime = changes.EditTime
	c.JSON(http.StatusOK, errno.Success(user))
}

// handleDeleteUser 注销当前账户并吊销其会话。
func (s *Server) handleDeleteUser(c *gin.Context) {
	callerID := getUserID(c)
	if id := pathID(c); id != callerID {
		_ = c.Error(errno.New(errno.KindAuth, errno.DeleteFailed, "cannot delete another user"))
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.FindByUserID(ctx, callerID)
	if err == nil {
		err = s.users.Delete(ctx, callerID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = c.Error(errno.New(errno.KindNotFound, errno.NotFound, ""))
			return
		}
		_ = c.Error(errno.Storage(errno.DeleteFailed, err))
		return
	}
	if err := s.sessions.Revoke(ctx, callerID); err != nil {
		s.logger.Warn("revoke session failed", slog.String("userid", callerID), slog.String("error", err.Error()))
	}
	s.logger.Info("user deleted", slog.String("userid", callerID))
	c.JSON(http.StatusOK, errno.Success(user))
}

// handleRandomPickUsers 随机返回一个其他用户，用于"打招呼"。
func (s *Server) handleRandomPickUsers(c *gin.Context) {
	u, err := s.users.PickRandom(c.Request.Context(), getUserID(c))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusOK, errno.SuccessWithCount([]model.User{}, 0))
			return
		}
		_ = c.Error(errno.Storage(errno.QueryFailed, err))
		return
	}
	c.JSON(http.StatusOK, errno.SuccessWithCount([]model.User{*u}, 1))
}
