package middleware

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"sayhi/internal/pkg/errno"
)

// ErrorHandler 统一渲染 handler 通过 c.Error 挂载的错误并兜底 panic。
//
// production 为 true 时，500 类错误只返回 "Internal Server Error"。
func ErrorHandler(production bool, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				logError(logger, c, err)
				if !c.Writer.Written() {
					e := errno.Storage(errno.QueryFailed, err)
					c.AbortWithStatusJSON(e.Kind.HTTPStatus(), errno.Failure(e, production))
				}
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		e, ok := errno.From(err)
		if !ok {
			e = errno.Storage(errno.QueryFailed, err)
		}
		if e.Kind == errno.KindStorage {
			logError(logger, c, err)
		}
		c.JSON(e.Kind.HTTPStatus(), errno.Failure(e, production))
	}
}

func logError(logger *slog.Logger, c *gin.Context, err error) {
	if logger == nil {
		return
	}
	var e *errno.Error
	code := 0
	if errors.As(err, &e) {
		code = int(e.Code)
	}
	logger.Error("request failed",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("errno", code),
		slog.String("error", err.Error()),
	)
}
