package model

// UserStatusActive 是新注册用户的默认状态。
const UserStatusActive = "ACTIVE"

// User 表示系统用户。
//
// UserID 是对外暴露的不可复用标识（UUID），会话 token 与消息都以它关联；
// ID 只是数据库自增主键。Password 保存 bcrypt 哈希，永不序列化。
// CreateTime / EditTime 为毫秒时间戳。
type User struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	UserID     string `gorm:"column:userid;type:varchar(64) COLLATE utf8mb4_bin;uniqueIndex;not null" json:"userid"`
	Username   string `gorm:"type:varchar(64);default:username" json:"username"`
	Realname   string `gorm:"type:varchar(64)" json:"realname"`
	Email      string `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	Password   string `gorm:"not null" json:"-"`
	Age        int    `gorm:"default:0" json:"age"`
	Gender     string `gorm:"type:varchar(16);default:unknown" json:"gender"`
	Avatar     string `gorm:"type:varchar(512)" json:"avatar"`
	Status     string `gorm:"type:varchar(16);default:ACTIVE" json:"status"`
	CreateTime int64  `gorm:"column:create_time;not null" json:"create_time"`
	EditTime   int64  `gorm:"column:edit_time;not null" json:"edit_time"`
}
