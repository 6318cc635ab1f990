package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sayhi/internal/pkg/metrics"
)

// RequestLogger 记录每个请求的方法、路径、状态码与耗时，并计入请求指标。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()
		if logger == nil {
			return
		}
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
		}
		if uid := UserID(c); uid != "" {
			attrs = append(attrs, slog.String("userid", uid))
		}
		logger.Info("http request", attrs...)
	}
}
