// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"agent-platform-go/internal/middleware"
	"agent-platform-go/internal/rag"
	"agent-platform-go/internal/repository"
	"agent-platform-go/internal/service"
	"agent-platform-go/internal/tools"
	"agent-platform-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ownerFromContext 读取认证中间件存入的用户 UUID。
// 匿名请求（可选认证且未携带令牌）返回 nil。
func ownerFromContext(c *gin.Context) *uuid.UUID {
	v, exists := c.Get(middleware.OwnerContextKey)
	if !exists {
		return nil
	}
	ownerID, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &ownerID
}

// requireOwner 读取用户 UUID，缺失时应答 401。
// 只应在 RequireAuth 保护的路由中使用。
func requireOwner(c *gin.Context) (uuid.UUID, bool) {
	owner := ownerFromContext(c)
	if owner == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录或登录已过期"})
		return uuid.Nil, false
	}
	return *owner, true
}

// parseUUIDParam 解析路径参数中的 UUID，格式不合法时应答 400。
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 " + name + " 参数"})
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalUUID 解析请求体中可选的 UUID 字符串，格式不合法时应答 400。
// 缺省或空串按未提供处理。
func parseOptionalUUID(c *gin.Context, raw *string, name string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 " + name + " 参数"})
		return nil, false
	}
	return &id, true
}

// respondServiceError 将业务层错误统一映射为 HTTP 应答。
// 输入校验类错误把原始消息返回给调用方；服务商调用失败时
// 完整错误只进日志，给用户的是通用文案加内部错误码。
func respondServiceError(c *gin.Context, err error) {
	var validationErr *rag.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
		return
	}

	if errors.Is(err, service.ErrToolNotEnabled) {
		c.JSON(http.StatusForbidden, gin.H{"error": "该助手未启用此工具"})
		return
	}

	var toolErr *tools.ToolError
	if errors.As(err, &toolErr) {
		status := http.StatusBadRequest
		if toolErr.RateLimited {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": toolErr.Message})
		return
	}

	switch {
	case errors.Is(err, repository.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
		return
	case errors.Is(err, repository.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	case errors.Is(err, repository.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "智能体不存在"})
		return
	case errors.Is(err, repository.ErrMemoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "记忆不存在"})
		return
	}

	var embeddingErr *rag.EmbeddingError
	if errors.As(err, &embeddingErr) {
		log.Errorf("[Handler] 向量化服务调用失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "向量化服务暂时不可用，请稍后重试",
			"code":  "EMBEDDING_FAILED",
		})
		return
	}

	var generationErr *rag.RemoteGenerationError
	if errors.As(err, &generationErr) {
		log.Errorf("[Handler] 生成服务调用失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "AI服务暂时不可用，请稍后重试",
			"code":  "GENERATION_FAILED",
		})
		return
	}

	var integrityErr *rag.DataIntegrityError
	if errors.As(err, &integrityErr) {
		log.Errorf("[Handler] 数据完整性错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "服务器内部错误",
			"code":  "DATA_INTEGRITY",
		})
		return
	}

	log.Errorf("[Handler] 未预期的内部错误: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "服务器内部错误",
		"code":  "INTERNAL",
	})
}
