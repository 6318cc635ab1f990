package errno

// InternalErrorMessage 是生产环境下替换 500 错误细节的文案。
const InternalErrorMessage = "Internal Server Error"

// Response 是所有接口共用的响应信封。
type Response struct {
	Errno   Code   `json:"errno"`
	Success bool   `json:"success"`
	Errmsg  string `json:"errmsg,omitempty"`
	Data    any    `json:"data,omitempty"`
	Count   *int64 `json:"count,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

// Success 构造成功响应。
func Success(data any) Response {
	return Response{Errno: OK, Success: true, Data: data}
}

// SuccessWithCount 构造带总数的列表响应。
func SuccessWithCount(data any, count int64) Response {
	resp := Success(data)
	resp.Count = &count
	return resp
}

// Failure 构造失败响应。
//
// sanitize 为 true 时，存储类错误只返回通用文案，不暴露底层错误信息。
func Failure(e *Error, sanitize bool) Response {
	resp := Response{Errno: e.Code, Success: false, Errmsg: e.Msg, Detail: e.Detail}
	if e.Kind == KindStorage {
		if sanitize {
			resp.Errmsg = InternalErrorMessage
		} else if e.Err != nil {
			resp.Errmsg = e.Msg + ": " + e.Err.Error()
		}
	}
	return resp
}
