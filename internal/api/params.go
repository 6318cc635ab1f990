package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sayhi/internal/api/middleware"
	"sayhi/internal/pkg/errno"
)

const headerTotalCount = "x-total-count"

var nowMillis = func() int64 { return time.Now().UnixMilli() }

// listBody 兼容旧客户端在请求体中携带的分页参数：
// {"start":0,"end":10,"sort":["create_time","DESC"],"filter":{...}}
type listBody struct {
	Start  *int       `json:"start"`
	End    *int       `json:"end"`
	Sort   []string   `json:"sort"`
	Filter listFilter `json:"filter"`
}

type listFilter struct {
	UserID         string `json:"userid"`
	ReceiverUserID string `json:"receiver_userid"`
	Unread         bool   `json:"unread"`
	Status         string `json:"status"`
}

// listParams 合并请求体与查询串后的分页参数，查询串优先。
type listParams struct {
	Start     int
	End       int
	SortField string
	SortOrder string
	Filter    listFilter
}

func parseListParams(c *gin.Context, defaultEnd int) (listParams, error) {
	p := listParams{Start: 0, End: defaultEnd}

	if c.Request.ContentLength > 0 {
		var body listBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return p, errno.Validation("", err.Error())
		}
		if body.Start != nil {
			p.Start = *body.Start
		}
		if body.End != nil {
			p.End = *body.End
		}
		if len(body.Sort) > 0 {
			p.SortField = body.Sort[0]
		}
		if len(body.Sort) > 1 {
			p.SortOrder = body.Sort[1]
		}
		p.Filter = body.Filter
	}

	var err error
	if p.Start, err = queryInt(c, "start", p.Start); err != nil {
		return p, err
	}
	if p.End, err = queryInt(c, "end", p.End); err != nil {
		return p, err
	}
	if raw := strings.TrimSpace(c.Query("sort")); raw != "" {
		field, order, _ := strings.Cut(raw, ",")
		p.SortField = strings.TrimSpace(field)
		p.SortOrder = strings.TrimSpace(order)
	}
	if order := strings.TrimSpace(c.Query("order")); order != "" {
		p.SortOrder = order
	}
	if raw := c.Query("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			return p, errno.Validation("", map[string]string{"unread": raw})
		}
		p.Filter.Unread = unread
	}
	if v := c.Query("status"); v != "" {
		p.Filter.Status = v
	}
	return p, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, errno.Validation("", map[string]string{key: raw})
	}
	return v, nil
}

// pathID 读取路径参数并去掉旧客户端 "/:value" 写法带来的前导冒号。
func pathID(c *gin.Context) string {
	return strings.TrimPrefix(strings.TrimSpace(c.Param("id")), ":")
}

func getUserID(c *gin.Context) string {
	return middleware.UserID(c)
}

func setTotalCount(c *gin.Context, n int64) {
	c.Header(headerTotalCount, strconv.FormatInt(n, 10))
}
