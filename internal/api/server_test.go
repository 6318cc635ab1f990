package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"sayhi/internal/api/middleware"
	"sayhi/internal/config"
	"sayhi/internal/message"
	"sayhi/internal/model"
	"sayhi/internal/pkg/errno"
	"sayhi/internal/repository"
	"sayhi/internal/session"
)

type mockSessions struct {
	revokeCalls int
}

func (m *mockSessions) Validate(ctx context.Context, userID, token string, ts int64) bool {
	return userID != "" && token == "tok-"+userID
}

func (m *mockSessions) IssueOrRenew(ctx context.Context, userID string) (session.Token, error) {
	return session.Token{Value: "tok-" + userID, ExpiresAt: 1}, nil
}

func (m *mockSessions) Revoke(ctx context.Context, userID string) error {
	m.revokeCalls++
	return nil
}

type mockMessages struct {
	sendFunc  func(ctx context.Context, req message.SendRequest) (*model.Message, error)
	sendCalls int
	lastSend  message.SendRequest

	queryCalls int
	lastRole   model.Role
	lastViewer string
	lastOpts   message.ListOptions

	latestCalls int

	lastID           string
	lastOwner        string
	lastText         string
	lastRetrieveTime string
	deleteCalls      int
}

func (m *mockMessages) Send(ctx context.Context, req message.SendRequest) (*model.Message, error) {
	m.sendCalls++
	m.lastSend = req
	if m.sendFunc != nil {
		return m.sendFunc(ctx, req)
	}
	return &model.Message{ID: req.ID, UserID: req.SenderID, ReceiverUserID: req.ReceiverID, Message: req.Text}, nil
}

func (m *mockMessages) page(role model.Role, viewer string, opts message.ListOptions) (message.Page, error) {
	m.queryCalls++
	m.lastRole, m.lastViewer, m.lastOpts = role, viewer, opts
	return message.Page{
		Items: []model.Message{{ID: "1", UserID: "u1", ReceiverUserID: "u2", Message: "hi", RetrieveTime: "1700000000000"}},
		Count: 7,
	}, nil
}

func (m *mockMessages) QueryAsSender(ctx context.Context, senderID string, opts message.ListOptions) (message.Page, error) {
	return m.page(model.RoleSender, senderID, opts)
}

func (m *mockMessages) QueryAsReceiver(ctx context.Context, receiverID string, opts message.ListOptions) (message.Page, error) {
	return m.page(model.RoleReceiver, receiverID, opts)
}

func (m *mockMessages) QueryLatest(ctx context.Context, role model.Role, viewerID string, filter message.Filter) (message.Page, error) {
	m.latestCalls++
	m.lastRole, m.lastViewer = role, viewerID
	return message.Page{Items: []model.Message{}, Count: 0}, nil
}

func (m *mockMessages) Update(ctx context.Context, id, senderID, text string) (*model.Message, error) {
	m.lastID, m.lastOwner, m.lastText = id, senderID, text
	if senderID != "u1" {
		return nil, message.ErrNotFound
	}
	return &model.Message{ID: id, UserID: senderID, Message: text}, nil
}

func (m *mockMessages) MarkRetrieved(ctx context.Context, id, receiverID, retrieveTime string) (*model.Message, error) {
	m.lastID, m.lastOwner, m.lastRetrieveTime = id, receiverID, retrieveTime
	return &model.Message{ID: id, ReceiverUserID: receiverID, RetrieveTime: retrieveTime}, nil
}

func (m *mockMessages) Delete(ctx context.Context, id string, role model.Role, ownerID string) (*model.Message, error) {
	m.deleteCalls++
	m.lastID, m.lastRole, m.lastOwner = id, role, ownerID
	return &model.Message{ID: id}, nil
}

type mockUsers struct {
	users       map[string]model.User
	pickExclude string
	updateCalls int
	deleteCalls int
}

func newMockUsers(users ...model.User) *mockUsers {
	m := &mockUsers{users: make(map[string]model.User)}
	for _, u := range users {
		m.users[u.UserID] = u
	}
	return m
}

func (m *mockUsers) Create(ctx context.Context, u *model.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	u.ID = uint(len(m.users) + 1)
	m.users[u.UserID] = *u
	return nil
}

func (m *mockUsers) FindByUserID(ctx context.Context, userID string) (*model.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (m *mockUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUsers) FindAllByUsername(ctx context.Context, username string) ([]model.User, error) {
	return nil, nil
}

func (m *mockUsers) List(ctx context.Context, q repository.UserQuery) ([]model.User, int64, error) {
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

func (m *mockUsers) Update(ctx context.Context, userID string, changes repository.UserChanges) error {
	m.updateCalls++
	u := m.users[userID]
	if changes.Realname != nil {
		u.Realname = *changes.Realname
	}
	m.users[userID] = u
	return nil
}

func (m *mockUsers) Delete(ctx context.Context, userID string) error {
	m.deleteCalls++
	if _, ok := m.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, userID)
	return nil
}

func (m *mockUsers) PickRandom(ctx context.Context, excludeUserID string) (*model.User, error) {
	m.pickExclude = excludeUserID
	for id, u := range m.users {
		if id != excludeUserID {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type testEnv struct {
	srv      *Server
	messages *mockMessages
	users    *mockUsers
	sessions *mockSessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		messages: &mockMessages{},
		users: newMockUsers(
			model.User{ID: 1, UserID: "u1", Username: "alice", Email: "alice@x.io"},
			model.User{ID: 2, UserID: "u2", Username: "bob", Email: "bob@x.io"},
		),
		sessions: &mockSessions{},
	}
	cfg := config.Default()
	env.srv = newServer(cfg, logger, Deps{Users: env.users, Messages: env.messages, Sessions: env.sessions})
	return env
}

func (e *testEnv) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderToken, "tok-"+userID)
		req.Header.Set(middleware.HeaderTokenTimestamp, "1700000000000")
	}
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) errno.Response {
	t.Helper()
	var resp errno.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestSendMessage_WithoutTokenNeverReachesHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/messages", "", gin.H{"id": 1, "message": "hi", "receiver_userid": "u2"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	resp := decode(t, w)
	if resp.Success || resp.Errno != errno.InvalidToken {
		t.Fatalf("unexpected body %+v", resp)
	}
	if env.messages.sendCalls != 0 {
		t.Fatalf("send must not be invoked, calls=%d", env.messages.sendCalls)
	}
}

func TestSendMessage_AcceptsNumericID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/messages", "u1", gin.H{"id": 1, "message": "hi", "receiver_userid": "u2"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	got := env.messages.lastSend
	if got.ID != "1" || got.SenderID != "u1" || got.ReceiverID != "u2" || got.Text != "hi" {
		t.Fatalf("unexpected send request %+v", got)
	}
}

func TestSendMessage_SelfMessageRejected(t *testing.T) {
	env := newTestEnv(t)
	env.messages.sendFunc = func(ctx context.Context, req message.SendRequest) (*model.Message, error) {
		return nil, message.ErrSelfMessage
	}

	w := env.do(http.MethodPost, "/api/v1/messages", "u1", gin.H{"id": "9", "message": "hi", "receiver_userid": "u1"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if resp := decode(t, w); resp.Errno != errno.SelfMessage {
		t.Fatalf("expected errno 2004, got %d", resp.Errno)
	}
}

func TestSendMessage_DuplicateIDConflict(t *testing.T) {
	env := newTestEnv(t)
	env.messages.sendFunc = func(ctx context.Context, req message.SendRequest) (*model.Message, error) {
		return nil, message.ErrDuplicateID
	}

	w := env.do(http.MethodPost, "/api/v1/messages", "u1", gin.H{"id": "9", "message": "hi", "receiver_userid": "u2"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if resp := decode(t, w); resp.Errno != errno.DuplicateMessageID {
		t.Fatalf("expected errno 2003, got %d", resp.Errno)
	}
}

func TestListReceived_ParamsAndTotalCount(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/notifications?start=10&end=20&sort=edit_time,ASC&unread=true", "u2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("x-total-count") != "7" {
		t.Fatalf("expected x-total-count 7, got %q", w.Header().Get("x-total-count"))
	}
	resp := decode(t, w)
	if resp.Count == nil || *resp.Count != 7 {
		t.Fatalf("expected count in body, got %+v", resp)
	}
	opts := env.messages.lastOpts
	if env.messages.lastRole != model.RoleReceiver || env.messages.lastViewer != "u2" {
		t.Fatalf("unexpected viewer %v %s", env.messages.lastRole, env.messages.lastViewer)
	}
	if opts.Start != 10 || opts.End != 20 || opts.Sort.Field != "edit_time" || opts.Sort.Order != "ASC" || !opts.Filter.UnreadOnly {
		t.Fatalf("unexpected list options %+v", opts)
	}
}

func TestListSent_BodyParams(t *testing.T) {
	env := newTestEnv(t)

	body := gin.H{"start": 0, "end": 5, "sort": []string{"create_time", "DESC"}, "filter": gin.H{"receiver_userid": "u2"}}
	w := env.do(http.MethodGet, "/api/v1/messages", "u1", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	opts := env.messages.lastOpts
	if opts.End != 5 || opts.Sort.Order != "DESC" || opts.Filter.CounterpartID != "u2" {
		t.Fatalf("unexpected list options %+v", opts)
	}
}

func TestConversation_StripsLeadingColon(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/notifications/:u1", "u2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env.messages.lastOpts.Filter.CounterpartID != "u1" {
		t.Fatalf("expected counterpart u1, got %q", env.messages.lastOpts.Filter.CounterpartID)
	}
}

func TestLatestRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/notifications/new", "u2", nil)
	if w.Code != http.StatusOK || env.messages.latestCalls != 1 || env.messages.lastRole != model.RoleReceiver {
		t.Fatalf("expected latest receiver query, code=%d calls=%d", w.Code, env.messages.latestCalls)
	}
	w = env.do(http.MethodGet, "/api/v1/messages/new", "u1", nil)
	if w.Code != http.StatusOK || env.messages.latestCalls != 2 || env.messages.lastRole != model.RoleSender {
		t.Fatalf("expected latest sender query, code=%d calls=%d", w.Code, env.messages.latestCalls)
	}
	if env.messages.queryCalls != 0 {
		t.Fatalf("/new must not be routed as a conversation")
	}
}

func TestUpdateMessage_NotOwner(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/api/v1/messages", "u2", gin.H{"id": 1, "message": "hijack"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if resp := decode(t, w); resp.Errno != errno.NotFound {
		t.Fatalf("expected errno 1005, got %d", resp.Errno)
	}
	if env.messages.lastID != "1" {
		t.Fatalf("expected body id, got %q", env.messages.lastID)
	}
}

func TestAcknowledge(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/api/v1/notifications/:7", "u2", gin.H{"retrieve_time": "1700000000999"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.messages.lastID != "7" || env.messages.lastOwner != "u2" || env.messages.lastRetrieveTime != "1700000000999" {
		t.Fatalf("unexpected acknowledge args %+v", env.messages)
	}
}

func TestDeleteRoutesUseRole(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodDelete, "/api/v1/messages/:42", "u1", nil)
	if w.Code != http.StatusOK || env.messages.lastRole != model.RoleSender || env.messages.lastID != "42" {
		t.Fatalf("unexpected sender delete code=%d role=%v id=%s", w.Code, env.messages.lastRole, env.messages.lastID)
	}
	w = env.do(http.MethodDelete, "/api/v1/notifications/42", "u2", nil)
	if w.Code != http.StatusOK || env.messages.lastRole != model.RoleReceiver || env.messages.lastOwner != "u2" {
		t.Fatalf("unexpected receiver delete code=%d role=%v", w.Code, env.messages.lastRole)
	}
}

func TestUpdateUser_OnlySelf(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/api/v1/users/:u2", "u1", gin.H{"realname": "Mallory"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if env.users.updateCalls != 0 {
		t.Fatalf("foreign update must not reach storage")
	}

	w = env.do(http.MethodPut, "/api/v1/users", "u1", gin.H{"realname": "Alice A.", "username": ""})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.users.users["u1"].Realname != "Alice A." || env.users.users["u1"].Username != "alice" {
		t.Fatalf("unexpected stored user %+v", env.users.users["u1"])
	}
}

func TestDeleteUser_RevokesSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodDelete, "/api/v1/users/u2", "u1", nil)
	if w.Code != http.StatusUnauthorized || env.users.deleteCalls != 0 {
		t.Fatalf("deleting another user must be rejected, code=%d", w.Code)
	}

	w = env.do(http.MethodDelete, "/api/v1/users/:u1", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.sessions.revokeCalls != 1 {
		t.Fatalf("expected session revoke, got %d", env.sessions.revokeCalls)
	}
	if _, ok := env.users.users["u1"]; ok {
		t.Fatalf("user should be deleted")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/users/:ghost", "u1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if resp := decode(t, w); resp.Errno != errno.QueryFailed {
		t.Fatalf("expected errno 1001, got %d", resp.Errno)
	}
}

func TestRandomPickUsers_ExcludesCaller(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/randomPickUsers", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env.users.pickExclude != "u1" {
		t.Fatalf("expected caller excluded, got %q", env.users.pickExclude)
	}
	if !strings.Contains(w.Body.String(), `"userid":"u2"`) {
		t.Fatalf("expected the other user, got %s", w.Body.String())
	}
}

func TestRegisterIsNotGated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/users", "", gin.H{"email": "carol@x.io", "password": "pw", "realname": "Carol"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSeedDemoData_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.messages.sendFunc = func(ctx context.Context, req message.SendRequest) (*model.Message, error) {
		if env.messages.sendCalls > 1 {
			return nil, message.ErrDuplicateID
		}
		return &model.Message{ID: req.ID}, nil
	}
	ctx := context.Background()

	if err := env.srv.SeedDemoData(ctx); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	users := len(env.users.users)
	if err := env.srv.SeedDemoData(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(env.users.users) != users {
		t.Fatalf("seed must not duplicate users: %d -> %d", users, len(env.users.users))
	}
	if env.messages.lastSend.ID != demoWelcomeMsgID {
		t.Fatalf("unexpected welcome message id %q", env.messages.lastSend.ID)
	}
}
