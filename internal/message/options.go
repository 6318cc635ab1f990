package message

import (
	"strings"

	"sayhi/internal/model"
	"sayhi/internal/pkg/errno"
	"sayhi/internal/repository"
)

const (
	OrderAsc  = "ASC"
	OrderDesc = "DESC"
)

// 默认分页区间 [0, 10)。
const (
	DefaultStart = 0
	DefaultEnd   = 10
)

var sortableFields = map[string]struct{}{
	"create_time":   {},
	"edit_time":     {},
	"retrieve_time": {},
	"id":            {},
}

// Filter 列表查询的可选条件。
type Filter struct {
	// CounterpartID 会话另一方：发送者视角下是接收者，接收者视角下是发送者。
	CounterpartID string
	// UnreadOnly 只返回 retrieve_time 为空的消息。
	UnreadOnly bool
}

// Sort 排序字段与方向，Order 为空时使用视角默认方向。
type Sort struct {
	Field string
	Order string
}

// ListOptions 列表查询参数，区间为 [Start, End)。
type ListOptions struct {
	Filter Filter
	Start  int
	End    int
	Sort   Sort
}

// DefaultListOptions 返回默认区间与排序。
func DefaultListOptions() ListOptions {
	return ListOptions{Start: DefaultStart, End: DefaultEnd}
}

func (o ListOptions) toQuery(role model.Role, viewerID string, maxPageSize int) (repository.MessageQuery, error) {
	if o.Start < 0 || o.End <= o.Start {
		return repository.MessageQuery{}, errno.Validation("invalid range",
			map[string]int{"start": o.Start, "end": o.End})
	}
	limit := o.End - o.Start
	if maxPageSize > 0 && limit > maxPageSize {
		limit = maxPageSize
	}

	field := strings.TrimSpace(o.Sort.Field)
	if field == "" {
		field = "create_time"
	}
	if _, ok := sortableFields[field]; !ok {
		return repository.MessageQuery{}, errno.Validation("unsupported sort field",
			map[string]string{"sort": field})
	}

	desc := role == model.RoleReceiver
	switch strings.ToUpper(strings.TrimSpace(o.Sort.Order)) {
	case "":
	case OrderAsc:
		desc = false
	case OrderDesc:
		desc = true
	default:
		return repository.MessageQuery{}, errno.Validation("unsupported sort order",
			map[string]string{"order": o.Sort.Order})
	}

	return repository.MessageQuery{
		Role:          role,
		ViewerID:      viewerID,
		CounterpartID: o.Filter.CounterpartID,
		UnreadOnly:    o.Filter.UnreadOnly,
		Offset:        o.Start,
		Limit:         limit,
		OrderBy:       field,
		Desc:          desc,
	}, nil
}
