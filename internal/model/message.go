package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message 表示一条定向消息（发送者 -> 接收者）。
//
// ID 由客户端提供并且全局唯一，重复 ID 会被拒绝而不是覆盖。
// ID 与两个用户 ID 列使用二进制排序规则，比较区分大小写。
// RetrieveTime 在接收方（或发送方）第一次查询到该消息之前为空字符串，
// 之后记录最近一次被查询到的毫秒时间戳。
type Message struct {
	ID             string `gorm:"primaryKey;type:varchar(64) COLLATE utf8mb4_bin" json:"id"`
	UserID         string `gorm:"column:userid;type:varchar(64) COLLATE utf8mb4_bin;not null;index:idx_message_sender,priority:1" json:"userid"`
	ReceiverUserID string `gorm:"column:receiver_userid;type:varchar(64) COLLATE utf8mb4_bin;not null;index:idx_message_receiver,priority:1" json:"receiver_userid"`
	Message        string `gorm:"type:text" json:"message"`
	CreateTime     int64  `gorm:"column:create_time;not null;index:idx_message_sender,priority:2;index:idx_message_receiver,priority:2" json:"create_time"`
	EditTime       int64  `gorm:"column:edit_time;not null" json:"edit_time"`
	RetrieveTime   string `gorm:"column:retrieve_time;type:varchar(32);not null" json:"retrieve_time"`
}

// IsRetrieved 报告消息是否已被查询过。
func (m *Message) IsRetrieved() bool {
	return m.RetrieveTime != ""
}

// FlexibleID 兼容客户端以数字或字符串提交的 ID（如 {"id": 1} 与 {"id": "1"}）。
type FlexibleID string

// UnmarshalJSON 接受 JSON 字符串或数字。
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// String 返回 ID 的字符串形式。
func (f FlexibleID) String() string {
	return string(f)
}
