// Package message 实现消息收发与"查询即已读"的回执逻辑。
//
// 同一张消息表有两个视角：发送者视角（userid）与接收者视角（receiver_userid）。
// 任一视角的列表查询都会把本页消息的 retrieve_time 置为查询时刻。
package message

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sayhi/internal/model"
	"sayhi/internal/pkg/errno"
	"sayhi/internal/pkg/metrics"
	"sayhi/internal/repository"
)

var (
	// ErrSelfMessage 发送者与接收者相同。
	ErrSelfMessage = errno.New(errno.KindValidation, errno.SelfMessage, "")
	// ErrDuplicateID 消息 ID 已被使用。
	ErrDuplicateID = errno.New(errno.KindConflict, errno.DuplicateMessageID, "")
	// ErrNotFound 消息不存在或调用方不是对应角色的所有者。
	ErrNotFound = errno.New(errno.KindNotFound, errno.NotFound, "")
)

// DefaultMaxPageSize 单页最大条数。
const DefaultMaxPageSize = 100

// MaxIDLength 消息 ID 的最大长度，与 sayhi_message.id 列宽一致。
const MaxIDLength = 64

// Claimer 在短窗口内占用消息 ID，合并重复提交。
type Claimer interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// SendRequest 发送消息的参数。ID 为空时由服务端生成。
type SendRequest struct {
	ID         string
	SenderID   string
	ReceiverID string
	Text       string
}

// Page 查询结果。
type Page struct {
	Items []model.Message
	Count int64
}

// Exchange 消息引擎。
type Exchange struct {
	repo        repository.MessageRepository
	claims      Claimer
	maxPageSize int
	now         func() time.Time
	logger      *slog.Logger
}

// Option 配置 Exchange。
type Option func(*Exchange)

// WithMaxPageSize 设置单页上限。
func WithMaxPageSize(n int) Option {
	return func(x *Exchange) {
		if n > 0 {
			x.maxPageSize = n
		}
	}
}

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option {
	return func(x *Exchange) { x.now = now }
}

// WithLogger 设置日志。
func WithLogger(logger *slog.Logger) Option {
	return func(x *Exchange) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// NewExchange 创建消息引擎。claims 可以为 nil，此时仅依赖数据库主键去重。
func NewExchange(repo repository.MessageRepository, claims Claimer, opts ...Option) *Exchange {
	x := &Exchange{
		repo:        repo,
		claims:      claims,
		maxPageSize: DefaultMaxPageSize,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Send 发送一条消息。
//
// 返回值：
//   - ErrSelfMessage：发送者与接收者相同，不写库
//   - ErrDuplicateID：ID 已存在或窗口内重复提交
func (x *Exchange) Send(ctx context.Context, req SendRequest) (*model.Message, error) {
	req.ID = strings.TrimSpace(req.ID)
	if req.SenderID == "" {
		return nil, errno.Validation("missing sender", map[string]string{"field": "userid"})
	}
	if req.ReceiverID == "" {
		return nil, errno.Validation("receiver_userid is required", map[string]string{"field": "receiver_userid"})
	}
	if req.Text == "" {
		return nil, errno.Validation("message is required", map[string]string{"field": "message"})
	}
	if req.SenderID == req.ReceiverID {
		metrics.MessagesSentTotal.WithLabelValues("self").Inc()
		return nil, ErrSelfMessage
	}
	if len(req.ID) > MaxIDLength {
		return nil, errno.Validation("id is too long", map[string]any{"field": "id", "max_length": MaxIDLength})
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	// held 只在本请求确实拿到占位时为 true，失败路径只释放自己的占位。
	held := false
	if x.claims != nil {
		claimed, err := x.claims.Claim(ctx, req.ID)
		switch {
		case err != nil:
			// Redis 不可用时退化为仅依赖主键约束。
			x.logger.Warn("message id claim failed",
				slog.String("id", req.ID),
				slog.String("error", err.Error()),
			)
		case !claimed:
			metrics.MessagesSentTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrDuplicateID
		default:
			held = true
		}
	}

	exists, err := x.repo.Exists(ctx, req.ID)
	if err != nil {
		if held {
			x.release(ctx, req.ID)
		}
		metrics.MessagesSentTotal.WithLabelValues("error").Inc()
		return nil, errno.Storage(errno.InsertFailed, err)
	}
	if exists {
		metrics.MessagesSentTotal.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateID
	}

	now := x.now().UnixMilli()
	msg := &model.Message{
		ID:             req.ID,
		UserID:         req.SenderID,
		ReceiverUserID: req.ReceiverID,
		Message:        req.Text,
		CreateTime:     now,
		EditTime:       now,
		RetrieveTime:   "",
	}
	if err := x.repo.InsertUnique(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.MessagesSentTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrDuplicateID
		}
		if held {
			x.release(ctx, req.ID)
		}
		metrics.MessagesSentTotal.WithLabelValues("error").Inc()
		return nil, errno.Storage(errno.InsertFailed, err)
	}
	metrics.MessagesSentTotal.WithLabelValues("sent").Inc()
	x.logger.Info("message sent",
		slog.String("id", msg.ID),
		slog.String("userid", msg.UserID),
		slog.String("receiver_userid", msg.ReceiverUserID),
	)
	return msg, nil
}

func (x *Exchange) release(ctx context.Context, id string) {
	if x.claims == nil {
		return
	}
	if err := x.claims.Release(ctx, id); err != nil {
		x.logger.Warn("message id release failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}

// QueryAsSender 查询 senderID 发出的消息，默认按 create_time 升序。
func (x *Exchange) QueryAsSender(ctx context.Context, senderID string, opts ListOptions) (Page, error) {
	return x.query(ctx, model.RoleSender, senderID, opts)
}

// QueryAsReceiver 查询 receiverID 收到的消息，默认按 create_time 降序。
func (x *Exchange) QueryAsReceiver(ctx context.Context, receiverID string, opts ListOptions) (Page, error) {
	return x.query(ctx, model.RoleReceiver, receiverID, opts)
}

// QueryLatest 返回某视角下最新的一条消息（可能为空页）。
func (x *Exchange) QueryLatest(ctx context.Context, role model.Role, viewerID string, filter Filter) (Page, error) {
	return x.query(ctx, role, viewerID, ListOptions{
		Filter: filter,
		Start:  0,
		End:    1,
		Sort:   Sort{Field: "create_time", Order: OrderDesc},
	})
}

func (x *Exchange) query(ctx context.Context, role model.Role, viewerID string, opts ListOptions) (Page, error) {
	if viewerID == "" {
		return Page{}, errno.Validation("missing viewer", map[string]string{"field": "userid"})
	}
	q, err := opts.toQuery(role, viewerID, x.maxPageSize)
	if err != nil {
		return Page{}, err
	}

	readAt := strconv.FormatInt(x.now().UnixMilli(), 10)
	page, err := x.repo.Fetch(ctx, q, &repository.MarkReadOnFetch{RetrieveTime: readAt})
	if err != nil {
		x.logger.Error("query messages failed",
			slog.String("role", role.String()),
			slog.String("userid", viewerID),
			slog.String("error", err.Error()),
		)
		return Page{}, errno.Storage(errno.QueryFailed, err)
	}
	metrics.MessagesMarkedReadTotal.WithLabelValues(role.String()).Add(float64(len(page.Items)))
	return Page{Items: page.Items, Count: page.Count}, nil
}

// Update 修改消息正文，仅发送者可操作。
func (x *Exchange) Update(ctx context.Context, id, senderID, text string) (*model.Message, error) {
	if id == "" {
		return nil, errno.Validation("id is required", map[string]string{"field": "id"})
	}
	if text == "" {
		return nil, errno.Validation("message is required", map[string]string{"field": "message"})
	}
	msg, err := x.findOwned(ctx, id, model.RoleSender, senderID)
	if err != nil {
		return nil, err
	}
	now := x.now().UnixMilli()
	if err := x.repo.UpdateText(ctx, id, senderID, text, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errno.Storage(errno.UpdateFailed, err)
	}
	msg.Message = text
	msg.EditTime = now
	return msg, nil
}

// MarkRetrieved 由接收者显式确认已读。retrieveTime 为空时使用当前时间。
func (x *Exchange) MarkRetrieved(ctx context.Context, id, receiverID, retrieveTime string) (*model.Message, error) {
	if id == "" {
		return nil, errno.Validation("id is required", map[string]string{"field": "id"})
	}
	retrieveTime = strings.TrimSpace(retrieveTime)
	if retrieveTime == "" {
		retrieveTime = strconv.FormatInt(x.now().UnixMilli(), 10)
	} else if _, err := strconv.ParseInt(retrieveTime, 10, 64); err != nil {
		return nil, errno.Validation("retrieve_time must be an epoch millisecond string",
			map[string]string{"field": "retrieve_time"})
	}

	msg, err := x.findOwned(ctx, id, model.RoleReceiver, receiverID)
	if err != nil {
		return nil, err
	}
	now := x.now().UnixMilli()
	if err := x.repo.SetRetrieveTime(ctx, id, receiverID, retrieveTime, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errno.Storage(errno.UpdateFailed, err)
	}
	msg.RetrieveTime = retrieveTime
	msg.EditTime = now
	return msg, nil
}

// Delete 按角色删除消息，返回被删除的消息。
func (x *Exchange) Delete(ctx context.Context, id string, role model.Role, ownerID string) (*model.Message, error) {
	if id == "" {
		return nil, errno.Validation("id is required", map[string]string{"field": "id"})
	}
	msg, err := x.findOwned(ctx, id, role, ownerID)
	if err != nil {
		return nil, err
	}
	if err := x.repo.DeleteOwned(ctx, id, role, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errno.Storage(errno.DeleteFailed, err)
	}
	x.logger.Info("message deleted",
		slog.String("id", id),
		slog.String("role", role.String()),
		slog.String("userid", ownerID),
	)
	return msg, nil
}

func (x *Exchange) findOwned(ctx context.Context, id string, role model.Role, ownerID string) (*model.Message, error) {
	if ownerID == "" {
		return nil, ErrNotFound
	}
	msg, err := x.repo.FindOwned(ctx, id, role, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errno.Storage(errno.QueryFailed, err)
	}
	return msg, nil
}
