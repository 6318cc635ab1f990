package model

// Role 表示调用方相对于某条消息的身份。
type Role int

const (
	RoleSender   Role = iota + 1 // 发送者（userid）
	RoleReceiver                 // 接收者（receiver_userid）
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	default:
		return "unknown"
	}
}
