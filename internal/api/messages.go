package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sayhi/internal/message"
	"sayhi/internal/model"
	"sayhi/internal/pkg/errno"
)

type sendMessageRequest struct {
	ID             model.FlexibleID `json:"id"`
	Message        string           `json:"message"`
	ReceiverUserID string           `json:"receiver_userid"`
}

type updateMessageRequest struct {
	ID      model.FlexibleID `json:"id"`
	Message string           `json:"message"`
}

type acknowledgeRequest struct {
	RetrieveTime string `json:"retrieve_time"`
}

// handleSendMessage 发送消息，发送者为当前登录用户。
func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errno.Validation("", err.Error()))
		return
	}
	msg, err := s.messages.Send(c.Request.Context(), message.SendRequest{
		ID:         req.ID.String(),
		SenderID:   getUserID(c),
		ReceiverID: req.ReceiverUserID,
		Text:       req.Message,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, errno.Success(msg))
}

// handleListSent 发件箱。
func (s *Server) handleListSent(c *gin.Context) {
	s.listMessages(c, model.RoleSender, "")
}

// handleConversationSent 发给 :id 的消息。
func (s *Server) handleConversationSent(c *gin.Context) {
	counterpart := pathID(c)
	if counterpart == "" {
		_ = c.Error(errno.Validation("", map[string]string{"field": "receiver_userid"}))
		return
	}
	s.listMessages(c, model.RoleSender, counterpart)
}

// handleListReceived 收件箱。
func (s *Server) handleListReceived(c *gin.Context) {
	s.listMessages(c, model.RoleReceiver, "")
}

// handleConversationReceived 来自 :id 的消息。
func (s *Server) handleConversationReceived(c *gin.Context) {
	counterpart := pathID(c)
	if counterpart == "" {
		_ = c.Error(errno.Validation("", map[string]string{"field": "userid"}))
		return
	}
	s.listMessages(c, model.RoleReceiver, counterpart)
}

func (s *Server) listMessages(c *gin.Context, role model.Role, counterpart string) {
	p, err := parseListParams(c, message.DefaultEnd)
	if err != nil {
		_ = c.Error(err)
		return
	}
	filter := message.Filter{UnreadOnly: p.Filter.Unread, CounterpartID: counterpart}
	if filter.CounterpartID == "" {
		if role == model.RoleSender {
			filter.CounterpartID = p.Filter.ReceiverUserID
		} else {
			filter.CounterpartID = p.Filter.UserID
		}
	}
	opts := message.ListOptions{
		Filter: filter,
		Start:  p.Start,
		End:    p.End,
		Sort:   message.Sort{Field: p.SortField, Order: p.SortOrder},
	}

	var page message.Page
	if role == model.RoleSender {
		page, err = s.messages.QueryAsSender(c.Request.Context(), getUserID(c), opts)
	} else {
		page, err = s.messages.QueryAsReceiver(c.Request.Context(), getUserID(c), opts)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	setTotalCount(c, page.Count)
	c.JSON(http.StatusOK, errno.SuccessWithCount(page.Items, page.Count))
}

func (s *Server) handleLatestSent(c *gin.Context) {
	s.latest(c, model.RoleSender)
}

func (s *Server) handleLatestReceived(c *gin.Context) {
	s.latest(c, model.RoleReceiver)
}

func (s *Server) latest(c *gin.Context, role model.Role) {
	page, err := s.messages.QueryLatest(c.Request.Context(), role, getUserID(c), message.Filter{})
	if err != nil {
		_ = c.Error(err)
		return
	}
	setTotalCount(c, page.Count)
	c.JSON(http.StatusOK, errno.SuccessWithCount(page.Items, page.Count))
}

// handleUpdateMessage 发送者修改消息正文，ID 取路径参数或请求体。
func (s *Server) handleUpdateMessage(c *gin.Context) {
	var req updateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errno.Validation("", err.Error()))
		return
	}
	id := pathID(c)
	if id == "" {
		id = req.ID.String()
	}
	msg, err := s.messages.Update(c.Request.Context(), id, getUserID(c), req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, errno.Success(msg))
}

// handleAcknowledge 接收者显式确认已读。
func (s *Server) handleAcknowledge(c *gin.Context) {
	var req acknowledgeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errno.Validation("", err.Error()))
			return
		}
	}
	msg, err := s.messages.MarkRetrieved(c.Request.Context(), pathID(c), getUserID(c), req.RetrieveTime)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, errno.Success(msg))
}

func (s *Server) handleDeleteSent(c *gin.Context) {
	s.deleteMessage(c, model.RoleSender)
}

func (s *Server) handleDeleteReceived(c *gin.Context) {
	s.deleteMessage(c, model.RoleReceiver)
}

func (s *Server) deleteMessage(c *gin.Context, role model.Role) {
	msg, err := s.messages.Delete(c.Request.Context(), pathID(c), role, getUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, errno.Success(msg))
}
