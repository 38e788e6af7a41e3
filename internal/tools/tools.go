// Package tools 提供了可由模型指令或接口直接调用的内置工具。
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tool 定义了一个内置工具的统一调用接口。
type Tool interface {
	Key() string
	Descriptor() Descriptor
	Execute(ctx context.Context, owner *uuid.UUID, params map[string]interface{}) (map[string]interface{}, error)
}

// Descriptor 描述一个工具及其参数，用于工具目录接口。
type Descriptor struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params"`
}

// ToolState 提供工具所需的结果缓存与调用频控能力。
type ToolState interface {
	GetCachedResult(ctx context.Context, key string) (string, time.Duration, error)
	SetCachedResult(ctx context.Context, key string, payload string, ttl time.Duration) error
	AllowToolCall(ctx context.Context, toolKey string, owner *uuid.UUID, limit int, window time.Duration) (bool, error)
}

// ToolError 表示工具执行失败，Message 可直接返回给调用方。
// RateLimited 为 true 时表示触发频控，应答 429 而非 400。
type ToolError struct {
	Message     string
	RateLimited bool
}

func (e *ToolError) Error() string {
	return e.Message
}

// NewToolError 创建一个带格式化消息的 ToolError。
func NewToolError(format string, args ...interface{}) *ToolError {
	return &ToolError{Message: fmt.Sprintf(format, args...)}
}

// truncateSnippet 按字符数截断摘要，保证多字节字符不被截断。
func truncateSnippet(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
