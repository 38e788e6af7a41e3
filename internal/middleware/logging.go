// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"agent-platform-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// logBodyLimit 是日志中请求体和响应体的最大记录长度（字节）。
const logBodyLimit = 2048

// responseRecorder 在透传响应的同时保留一份副本供日志使用。
type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestLogger 记录每个请求的方法、路径、状态码、耗时与报文内容。
// multipart 请求体不做缓存，避免把上传文件的二进制内容写进日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var requestBody []byte
		contentType := c.GetHeader("Content-Type")
		if c.Request.Body != nil && !strings.HasPrefix(contentType, "multipart/form-data") {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 读过的请求体要放回去，后续 handler 还要再读一遍。
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		rec := &responseRecorder{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", truncateForLog(requestBody),
			"responseBody", truncateForLog(rec.body.Bytes()),
		)
	}
}

// truncateForLog 截断过长的报文，保持日志行的体积可控。
func truncateForLog(b []byte) string {
	if len(b) <= logBodyLimit {
		return string(b)
	}
	return string(b[:logBodyLimit]) + "...(truncated)"
}
