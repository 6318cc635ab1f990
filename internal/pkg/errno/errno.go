// Package errno 定义对外暴露的错误码、错误分类以及统一的响应信封。
package errno

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 是响应体中的 errno 字段。
type Code int

const (
	OK Code = 0

	QueryFailed  Code = 1001 // 查询失败 / 无结果
	InsertFailed Code = 1002 // 插入失败
	UpdateFailed Code = 1003 // 更新失败
	DeleteFailed Code = 1004 // 删除失败
	NotFound     Code = 1005 // 更新/删除目标不存在

	InvalidToken       Code = 2000 // token 校验失败
	LoginMismatch      Code = 2001 // 用户名/邮箱与密码不匹配
	DuplicateEmail     Code = 2002 // 注册邮箱重复
	DuplicateMessageID Code = 2003 // 消息 ID 重复
	SelfMessage        Code = 2004 // 不能给自己发消息

	InvalidParams Code = 9999 // 参数缺失或格式错误
)

var defaultMessages = map[Code]string{
	QueryFailed:        "fail to get result for this info",
	InsertFailed:       "fail to insert",
	UpdateFailed:       "fail to update",
	DeleteFailed:       "fail to delete",
	NotFound:           "fail to find the item",
	InvalidToken:       "fail to validate token",
	LoginMismatch:      "fail to login, mismatched username and password",
	DuplicateEmail:     "fail to register, duplicate email",
	DuplicateMessageID: "duplicate inserting",
	SelfMessage:        "cannot send message to yourself",
	InvalidParams:      "Invalid Parameters",
}

// Message 返回错误码的默认描述。
func (c Code) Message() string {
	if msg, ok := defaultMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// Kind 表示错误的大类，决定 HTTP 状态码和是否需要脱敏。
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindConflict
	KindNotFound
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// HTTPStatus 把错误分类映射为 HTTP 状态码。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error 是业务层返回的结构化错误。
//
// 预期内的业务失败（重复、不存在、给自己发消息）以 *Error 返回给调用方直接渲染；
// 只有 KindStorage 的错误会交给顶层错误处理中间件，并在生产环境隐藏细节。
type Error struct {
	Code   Code
	Kind   Kind
	Msg    string
	Detail any
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is 能匹配同码的不同实例。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Kind == e.Kind
}

// New 创建一个不包装底层错误的 *Error。
func New(kind Kind, code Code, msg string) *Error {
	if msg == "" {
		msg = code.Message()
	}
	return &Error{Code: code, Kind: kind, Msg: msg}
}

// Validation 创建参数校验错误。
func Validation(msg string, detail any) *Error {
	e := New(KindValidation, InvalidParams, msg)
	e.Detail = detail
	return e
}

// Storage 包装底层存储错误。
func Storage(code Code, err error) *Error {
	return &Error{Code: code, Kind: KindStorage, Msg: code.Message(), Err: err}
}

// From 从错误链中提取 *Error。
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
