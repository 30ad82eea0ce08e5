// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"time"

	"bunker-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 限制日志中请求体的长度，避免大消息刷爆日志。
const maxLoggedBody = 2048

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
// 与普通 JSON 接口不同，本服务有长连接推送与分块流式响应，
// 因此只记录请求侧信息，不拦截响应体。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// 读取并重新缓存请求体
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}
		if len(requestBody) > maxLoggedBody {
			requestBody = requestBody[:maxLoggedBody]
		}

		// 处理请求
		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", string(requestBody),
		)
	}
}
