// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"agent-platform-go/internal/config"
	"agent-platform-go/internal/service"

	"github.com/gin-gonic/gin"
)

// serviceVersion 是对外暴露的服务版本号。
const serviceVersion = "1.0.0"

// HealthHandler 负责健康检查与服务状态类接口。
type HealthHandler struct {
	searchService service.SearchService
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(searchService service.SearchService) *HealthHandler {
	return &HealthHandler{searchService: searchService}
}

// Root 处理根路径请求，返回服务运行信息。
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "AI Agent Platform API is running with " + config.Conf.LLM.Model,
		"version": serviceVersion,
	})
}

// Health 处理健康检查请求。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "Service is operational",
		"version": serviceVersion,
	})
}

// Status 返回服务的详细运行状态。
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "running",
		"service":     "AI Agent Platform Backend",
		"ai_model":    config.Conf.LLM.Model,
		"version":     serviceVersion,
		"environment": config.Conf.Server.Mode,
	})
}

// RAGPing 探测检索流水线的依赖可用性：向量化服务与数据库。
// 任一依赖不可用时 ok 为 false，但接口本身仍返回 200。
func (h *HealthHandler) RAGPing(c *gin.Context) {
	status := h.searchService.Ping(c.Request.Context())
	c.JSON(http.StatusOK, status)
}
