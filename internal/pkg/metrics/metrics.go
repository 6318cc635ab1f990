// Package metrics 定义服务暴露的 Prometheus 指标。
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LoginTotal 登录请求数，按结果分类 (success / mismatch / invalid / error)。
	LoginTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sayhi_login_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	// TokenIssuedTotal 签发/续期 token 数，kind 为 issued 或 renewed。
	TokenIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sayhi_token_issued_total",
		Help: "Session tokens issued or renewed.",
	}, []string{"kind"})

	// TokenValidationTotal 鉴权中间件的 token 校验结果。
	TokenValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sayhi_token_validation_total",
		Help: "Token validations performed by the authorization gate.",
	}, []string{"result"})

	// MessagesSentTotal 发送消息结果 (sent / self / duplicate / error)。
	MessagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sayhi_messages_sent_total",
		Help: "Message send attempts by result.",
	}, []string{"result"})

	// MessagesMarkedReadTotal 查询时被打上 retrieve_time 的消息数，按视角分类。
	MessagesMarkedReadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sayhi_messages_marked_read_total",
		Help: "Messages stamped with retrieve_time on fetch, by viewer role.",
	}, []string{"role"})

	// HTTPRequestsTotal HTTP 请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sayhi_http_requests_total",
		Help: "HTTP requests by method and status.",
	}, []string{"method", "status"})
)

var registerOnce sync.Once

// InitMetrics 向默认注册表注册全部指标，可重复调用。
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LoginTotal,
			TokenIssuedTotal,
			TokenValidationTotal,
			MessagesSentTotal,
			MessagesMarkedReadTotal,
			HTTPRequestsTotal,
		)
	})
}
