package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestLoggerPreservesBody(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())

	var seenBody string
	r.POST("/echo", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			t.Errorf("处理函数读取请求体失败: %v", err)
		}
		seenBody = string(b)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	payload := `{"message":"你好"}`
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	// 中间件读过请求体之后，处理函数必须还能读到完整内容。
	if seenBody != payload {
		t.Errorf("处理函数读到的请求体 = %q, 期望 %q", seenBody, payload)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Errorf("响应体异常: %s", w.Body.String())
	}
}

func TestRequestLoggerSkipsMultipartBody(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())

	var seenLen int
	r.POST("/upload", func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		seenLen = len(b)
		c.Status(http.StatusOK)
	})

	// 中间件不应缓存 multipart 请求体，但流仍要原样传给处理函数。
	body := bytes.Repeat([]byte("x"), 4096)
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	if seenLen != len(body) {
		t.Errorf("处理函数读到 %d 字节, 期望 %d", seenLen, len(body))
	}
}

func TestTruncateForLog(t *testing.T) {
	short := []byte("short body")
	if got := truncateForLog(short); got != "short body" {
		t.Errorf("短报文不应被截断: %q", got)
	}

	long := bytes.Repeat([]byte("a"), logBodyLimit+100)
	got := truncateForLog(long)
	if !strings.HasSuffix(got, "...(truncated)") {
		t.Errorf("长报文应以截断标记结尾: %q", got[len(got)-30:])
	}
	if len(got) != logBodyLimit+len("...(truncated)") {
		t.Errorf("截断后长度 = %d", len(got))
	}
}
